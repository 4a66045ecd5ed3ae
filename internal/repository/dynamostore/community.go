package dynamostore

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/natureofthedivine/storefront/internal/domain"
)

func (s *Store) Totals(ctx context.Context, kind domain.Kind) ([]domain.Total, error) {
	totals := []domain.Total{}
	err := s.scan(ctx, totalKey(kind, ""), nil, func(item map[string]dynamodbtypes.AttributeValue) error {
		var t domain.Total
		if err := attributevalue.UnmarshalMap(item, &t); err != nil {
			return fmt.Errorf("unmarshal total: %w", err)
		}
		totals = append(totals, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Currency < totals[j].Currency })
	return totals, nil
}

func (s *Store) Leaderboard(ctx context.Context, kind domain.Kind, currency string, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	entries := []domain.LeaderboardEntry{}
	err := s.scan(ctx, leaderPrefix(kind, currency), nil, func(item map[string]dynamodbtypes.AttributeValue) error {
		var e domain.LeaderboardEntry
		if err := attributevalue.UnmarshalMap(item, &e); err != nil {
			return fmt.Errorf("unmarshal leaderboard entry: %w", err)
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Amount != entries[j].Amount {
			return entries[i].Amount > entries[j].Amount
		}
		return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) LogCallback(ctx context.Context, l *domain.CallbackLog) error {
	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshal callback log: %w", err)
	}
	item["pk"] = str(callbackKey(l.ID))

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put callback log: %w", err)
	}
	return nil
}

func (s *Store) CallbackLogs(ctx context.Context, merchantTxnID string) ([]domain.CallbackLog, error) {
	logs := []domain.CallbackLog{}
	byTxn := &filter{
		expr:   "merchant_transaction_id = :txn",
		values: map[string]dynamodbtypes.AttributeValue{":txn": str(merchantTxnID)},
	}
	err := s.scan(ctx, callbackKey(""), byTxn,
		func(item map[string]dynamodbtypes.AttributeValue) error {
			var l domain.CallbackLog
			if err := attributevalue.UnmarshalMap(item, &l); err != nil {
				return fmt.Errorf("unmarshal callback log: %w", err)
			}
			logs = append(logs, l)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].ReceivedAt.Before(logs[j].ReceivedAt) })
	return logs, nil
}
