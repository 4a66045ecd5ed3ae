package dynamostore

import (
	"context"
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

// paymentItem decodes the fields of either record kind the lifecycle needs.
type paymentItem struct {
	domain.Payment
	Name string `dynamodbav:"name"`
}

type txnIndex struct {
	RecordID string `dynamodbav:"record_id"`
}

func (s *Store) findPayment(ctx context.Context, kind domain.Kind, txn string) (*paymentItem, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidRequest, kind)
	}
	var idx txnIndex
	found, err := s.getItem(ctx, txnKey(kind, txn), &idx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s %s: %w", kind, txn, apperr.ErrRecordNotFound)
	}

	var p paymentItem
	found, err = s.getItem(ctx, recordKey(kind, idx.RecordID), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s %s: %w", kind, txn, apperr.ErrRecordNotFound)
	}
	return &p, nil
}

func (s *Store) FindPayment(ctx context.Context, kind domain.Kind, merchantTxnID string) (*domain.Payment, error) {
	p, err := s.findPayment(ctx, kind, merchantTxnID)
	if err != nil {
		return nil, err
	}
	return &p.Payment, nil
}

// Transition moves a PENDING record to t.To in one TransactWriteItems call.
// The record update is conditional on status = PENDING; for SUCCESS the same
// transaction ADDs to the total and leaderboard items, so they move only when
// the condition holds.
func (s *Store) Transition(ctx context.Context, kind domain.Kind, merchantTxnID string, t domain.Transition) (bool, error) {
	if !t.To.Terminal() {
		return false, fmt.Errorf("%w: %s is not a terminal status", apperr.ErrInvalidTransition, t.To)
	}
	p, err := s.findPayment(ctx, kind, merchantTxnID)
	if err != nil {
		return false, err
	}

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	set := "SET #status = :to, updated_at = :at"
	values := map[string]dynamodbtypes.AttributeValue{
		":to":      str(string(t.To)),
		":at":      ts(at),
		":pending": str(string(domain.StatusPending)),
	}
	if len(t.Details) > 0 {
		set += ", payment_details = :details"
		values[":details"] = &dynamodbtypes.AttributeValueMemberB{Value: t.Details}
	} else {
		set += " REMOVE payment_details"
	}

	items := []dynamodbtypes.TransactWriteItem{{
		Update: &dynamodbtypes.Update{
			TableName:                 aws.String(s.table),
			Key:                       pk(recordKey(kind, p.ID)),
			UpdateExpression:          aws.String(set),
			ConditionExpression:       aws.String("#status = :pending"),
			ExpressionAttributeNames:  map[string]string{"#status": "status"},
			ExpressionAttributeValues: values,
		},
	}}
	if t.To == domain.StatusSuccess {
		items = append(items, s.successItems(kind, p, at)...)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if conditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("transition %s %s: %w", kind, merchantTxnID, err)
	}
	return true, nil
}

func (s *Store) successItems(kind domain.Kind, p *paymentItem, at time.Time) []dynamodbtypes.TransactWriteItem {
	total := &dynamodbtypes.Update{
		TableName:                aws.String(s.table),
		Key:                      pk(totalKey(kind, p.Currency)),
		UpdateExpression:         aws.String("SET kind = :kind, currency = :cur, updated_at = :at ADD amount :amt, #count :one"),
		ExpressionAttributeNames: map[string]string{"#count": "count"},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":kind": str(string(kind)),
			":cur":  str(p.Currency),
			":at":   ts(at),
			":amt":  num(p.Amount),
			":one":  num(1),
		},
	}

	leaderSet := "SET kind = :kind, currency = :cur, user_id = :user, updated_at = :at"
	leaderValues := map[string]dynamodbtypes.AttributeValue{
		":kind": str(string(kind)),
		":cur":  str(p.Currency),
		":user": str(p.UserID),
		":at":   ts(at),
		":amt":  num(p.Amount),
		":one":  num(1),
	}
	if p.Name != "" {
		leaderSet += ", #name = :name"
		leaderValues[":name"] = str(p.Name)
	}
	leader := &dynamodbtypes.Update{
		TableName:                 aws.String(s.table),
		Key:                       pk(leaderPrefix(kind, p.Currency) + p.UserID),
		UpdateExpression:          aws.String(leaderSet + " ADD amount :amt, #count :one"),
		ExpressionAttributeNames:  map[string]string{"#count": "count"},
		ExpressionAttributeValues: leaderValues,
	}
	if p.Name != "" {
		leader.ExpressionAttributeNames["#name"] = "name"
	}

	return []dynamodbtypes.TransactWriteItem{{Update: total}, {Update: leader}}
}

// ListPending returns PENDING records created before cutoff, oldest first.
func (s *Store) ListPending(ctx context.Context, kind domain.Kind, cutoff time.Time, limit int) ([]domain.Payment, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidRequest, kind)
	}
	if limit <= 0 {
		limit = 100
	}

	var out []domain.Payment
	pending := &filter{
		expr:   "#status = :pending",
		names:  map[string]string{"#status": "status"},
		values: map[string]dynamodbtypes.AttributeValue{":pending": str(string(domain.StatusPending))},
	}
	err := s.scan(ctx, recordKey(kind, ""), pending,
		func(item map[string]dynamodbtypes.AttributeValue) error {
			var p domain.Payment
			if err := attributevalue.UnmarshalMap(item, &p); err != nil {
				return fmt.Errorf("unmarshal %s: %w", kind, err)
			}
			if p.CreatedAt.Before(cutoff) {
				out = append(out, p)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context, kind domain.Kind) (domain.StatusCounts, error) {
	var counts domain.StatusCounts
	if !kind.Valid() {
		return counts, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidRequest, kind)
	}
	err := s.scan(ctx, recordKey(kind, ""), nil, func(item map[string]dynamodbtypes.AttributeValue) error {
		var p struct {
			Status domain.PaymentStatus `dynamodbav:"status"`
		}
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return err
		}
		counts.Add(p.Status, 1)
		return nil
	})
	return counts, err
}
