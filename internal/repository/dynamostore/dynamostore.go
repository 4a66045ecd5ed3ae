// Package dynamostore keeps orders, donations and their aggregates in a single
// DynamoDB table keyed by the string attribute "pk".
//
// Item layout:
//
//	order#<id>                      order record
//	donation#<id>                   donation record
//	txn#<kind>#<merchantTxnID>      index item pointing at the record id
//	total#<kind>#<currency>         running total
//	leader#<kind>#<currency>#<user> leaderboard entry
//	callback#<id>                   callback audit log
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type Store struct {
	client API
	table  string
}

func New(client API, table string) *Store {
	return &Store{client: client, table: table}
}

// Close is a no-op; the SDK client owns no resources that need releasing.
func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", s.table, err)
	}
	return nil
}

func recordKey(kind domain.Kind, id string) string { return string(kind) + "#" + id }

func txnKey(kind domain.Kind, txn string) string { return "txn#" + string(kind) + "#" + txn }

func totalKey(kind domain.Kind, cur string) string { return "total#" + string(kind) + "#" + cur }

func leaderPrefix(kind domain.Kind, cur string) string {
	return "leader#" + string(kind) + "#" + cur + "#"
}

func callbackKey(id string) string { return "callback#" + id }

func pk(v string) map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{"pk": &dynamodbtypes.AttributeValueMemberS{Value: v}}
}

func str(v string) dynamodbtypes.AttributeValue {
	return &dynamodbtypes.AttributeValueMemberS{Value: v}
}

func num(v int64) dynamodbtypes.AttributeValue {
	return &dynamodbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", v)}
}

func ts(t time.Time) dynamodbtypes.AttributeValue {
	return str(t.UTC().Format(time.RFC3339Nano))
}

// conditionFailed reports whether err is a conditional check failure, either
// direct or as the reason a transaction was cancelled.
func conditionFailed(err error) bool {
	var ccf *dynamodbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *dynamodbtypes.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func (s *Store) create(ctx context.Context, kind domain.Kind, id, txn string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	item["pk"] = str(recordKey(kind, id))
	item["kind"] = str(string(kind))

	index := pk(txnKey(kind, txn))
	index["record_id"] = str(id)

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []dynamodbtypes.TransactWriteItem{
			{Put: &dynamodbtypes.Put{
				TableName:           aws.String(s.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &dynamodbtypes.Put{
				TableName:           aws.String(s.table),
				Item:                index,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrDuplicate)
		}
		return fmt.Errorf("create %s: %w", kind, err)
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	return s.create(ctx, domain.KindOrder, o.ID, o.MerchantTransactionID, o)
}

func (s *Store) CreateDonation(ctx context.Context, d *domain.Donation) error {
	return s.create(ctx, domain.KindDonation, d.ID, d.MerchantTransactionID, d)
}

func (s *Store) getItem(ctx context.Context, key string, dst any) (bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            pk(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if out.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, dst); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	found, err := s.getItem(ctx, recordKey(domain.KindOrder, id), &o)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrRecordNotFound)
	}
	return &o, nil
}

func (s *Store) GetDonation(ctx context.Context, id string) (*domain.Donation, error) {
	var d domain.Donation
	found, err := s.getItem(ctx, recordKey(domain.KindDonation, id), &d)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("donation %s: %w", id, apperr.ErrRecordNotFound)
	}
	return &d, nil
}

// filter narrows a scan beyond the pk prefix.
type filter struct {
	expr   string
	names  map[string]string
	values map[string]dynamodbtypes.AttributeValue
}

// scan walks every item whose pk starts with prefix, following
// LastEvaluatedKey until the table is exhausted.
func (s *Store) scan(ctx context.Context, prefix string, f *filter, fn func(map[string]dynamodbtypes.AttributeValue) error) error {
	expr := "begins_with(pk, :prefix)"
	values := map[string]dynamodbtypes.AttributeValue{":prefix": str(prefix)}
	var names map[string]string
	if f != nil {
		expr += " AND " + f.expr
		for k, v := range f.values {
			values[k] = v
		}
		names = f.names
	}

	var lastKey map[string]dynamodbtypes.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.table),
			FilterExpression:          aws.String(expr),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         lastKey,
			ConsistentRead:            aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", prefix, err)
		}
		for _, item := range out.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		lastKey = out.LastEvaluatedKey
		if len(lastKey) == 0 {
			return nil
		}
	}
}

func (s *Store) ListOrders(ctx context.Context, f domain.ListFilter) ([]domain.Order, int, error) {
	f = f.Normalize()
	var all []domain.Order
	err := s.scan(ctx, recordKey(domain.KindOrder, ""), nil, func(item map[string]dynamodbtypes.AttributeValue) error {
		var o domain.Order
		if err := attributevalue.UnmarshalMap(item, &o); err != nil {
			return fmt.Errorf("unmarshal order: %w", err)
		}
		if f.Status == "" || o.Status == f.Status {
			all = append(all, o)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	lo, hi := page(len(all), f)
	return append([]domain.Order{}, all[lo:hi]...), len(all), nil
}

func (s *Store) ListDonations(ctx context.Context, f domain.ListFilter) ([]domain.Donation, int, error) {
	f = f.Normalize()
	var all []domain.Donation
	err := s.scan(ctx, recordKey(domain.KindDonation, ""), nil, func(item map[string]dynamodbtypes.AttributeValue) error {
		var d domain.Donation
		if err := attributevalue.UnmarshalMap(item, &d); err != nil {
			return fmt.Errorf("unmarshal donation: %w", err)
		}
		if f.Status == "" || d.Status == f.Status {
			all = append(all, d)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	lo, hi := page(len(all), f)
	return append([]domain.Donation{}, all[lo:hi]...), len(all), nil
}

func page(n int, f domain.ListFilter) (int, int) {
	lo := min(f.Offset(), n)
	hi := min(lo+f.Limit, n)
	return lo, hi
}

// UpdateFulfillment moves a paid order along the fulfilment lifecycle. The
// write is conditional on the status read, so a concurrent move fails with
// apperr.ErrInvalidTransition.
func (s *Store) UpdateFulfillment(ctx context.Context, id string, to domain.FulfillmentStatus) (*domain.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.CheckFulfillment(to); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 pk(recordKey(domain.KindOrder, id)),
		UpdateExpression:    aws.String("SET fulfillment_status = :to, updated_at = :at"),
		ConditionExpression: aws.String("fulfillment_status = :from AND #status = :paid"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":to":   str(string(to)),
			":from": str(string(o.FulfillmentStatus)),
			":paid": str(string(domain.StatusSuccess)),
			":at":   ts(now),
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return nil, fmt.Errorf("order %s changed concurrently: %w", id, apperr.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update fulfillment: %w", err)
	}

	o.FulfillmentStatus = to
	o.UpdatedAt = now
	return o, nil
}
