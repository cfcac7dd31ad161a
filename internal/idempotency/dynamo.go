package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/stablepay/go-commerce-gateway/internal/aws"
)

// DefaultStaleAfter bounds the retry window: an IN_PROGRESS record older
// than this is assumed abandoned (crashed holder) and may be taken over.
const DefaultStaleAfter = 2 * time.Minute

// DynamoStore keeps idempotency records in a DynamoDB table using
// conditional writes for the create-if-absent and take-over primitives.
type DynamoStore struct {
	client     aws.DynamoDBAPI
	tableName  string
	ttlWindow  time.Duration
	staleAfter time.Duration
	nowFunc    func() time.Time
}

// NewDynamoStore returns a configured DynamoStore.
// ttlWindow bounds record retention (e.g. 48*time.Hour).
func NewDynamoStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *DynamoStore {
	return &DynamoStore{
		client:     client,
		tableName:  tableName,
		ttlWindow:  ttlWindow,
		staleAfter: DefaultStaleAfter,
		nowFunc:    time.Now,
	}
}

// TableName returns the backing table, for callers composing transactions
// that touch an idempotency record alongside their own items.
func (s *DynamoStore) TableName() string { return s.tableName }

// Begin atomically claims key. See BeginState for the possible outcomes.
func (s *DynamoStore) Begin(ctx context.Context, key, paramsHash string) (BeginState, *Record, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:        key,
		Status:     StatusInProgress,
		ParamsHash: paramsHash,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(record_key)"),
	})
	if err == nil {
		return Started, &rec, nil
	}
	if !isConditionalFailure(err) {
		return 0, nil, fmt.Errorf("put record: %w", err)
	}

	// Key exists: inspect and decide.
	existing, err := s.Get(ctx, key)
	if err != nil {
		return 0, nil, err
	}
	if existing == nil {
		return 0, nil, fmt.Errorf("record for %q vanished between put and get", key)
	}

	if hashConflict(existing.ParamsHash, paramsHash) {
		return Conflicted, existing, nil
	}

	switch existing.Status {
	case StatusDone:
		return Replayed, existing, nil
	case StatusFailed:
		return s.takeOver(ctx, key, paramsHash, existing, StatusFailed)
	case StatusInProgress:
		if now.Sub(existing.UpdatedAt) > s.staleAfter {
			return s.takeOver(ctx, key, paramsHash, existing, StatusInProgress)
		}
		return InFlight, existing, nil
	default:
		return 0, nil, fmt.Errorf("record %q has unknown status %q", key, existing.Status)
	}
}

// takeOver flips a failed or abandoned record back to IN_PROGRESS, guarded
// on the status and timestamp observed so only one contender wins.
func (s *DynamoStore) takeOver(ctx context.Context, key, paramsHash string, seen *Record, fromStatus string) (BeginState, *Record, error) {
	now := s.nowFunc().UTC()
	seenUpdated, err := attributevalue.Marshal(seen.UpdatedAt)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal seen timestamp: %w", err)
	}
	newUpdated, err := attributevalue.Marshal(now)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal timestamp: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"record_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: awsString("SET #s = :inprogress, params_hash = :ph, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":ph":         &types.AttributeValueMemberS{Value: paramsHash},
			":ua":         newUpdated,
			":from":       &types.AttributeValueMemberS{Value: fromStatus},
			":seen":       seenUpdated,
		},
		ConditionExpression: awsString("#s = :from AND updated_at = :seen"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			// Another contender already claimed it.
			return InFlight, seen, nil
		}
		return 0, nil, fmt.Errorf("take over record: %w", err)
	}

	claimed := *seen
	claimed.Status = StatusInProgress
	claimed.ParamsHash = paramsHash
	claimed.UpdatedAt = now
	return Started, &claimed, nil
}

// Get retrieves a record by key. Returns (nil, nil) if absent.
func (s *DynamoStore) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"record_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// MarkDone records the outcome so later retries with the same key replay it.
func (s *DynamoStore) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	return s.setStatus(ctx, key, StatusDone, map[string]types.AttributeValue{
		":rb": &types.AttributeValueMemberS{Value: responseBody},
		":rs": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
	}, "response_body = :rb, response_status = :rs")
}

// MarkFailed releases the key for a later retry and keeps a diagnostic note.
func (s *DynamoStore) MarkFailed(ctx context.Context, key, note string) error {
	return s.setStatus(ctx, key, StatusFailed, map[string]types.AttributeValue{
		":n": &types.AttributeValueMemberS{Value: note},
	}, "note = :n")
}

func (s *DynamoStore) setStatus(ctx context.Context, key, status string, extraValues map[string]types.AttributeValue, extraExpr string) error {
	now, err := attributevalue.Marshal(s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("marshal timestamp: %w", err)
	}
	values := map[string]types.AttributeValue{
		":s":  &types.AttributeValueMemberS{Value: status},
		":ua": now,
	}
	for k, v := range extraValues {
		values[k] = v
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"record_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:          awsString("SET #s = :s, updated_at = :ua, " + extraExpr),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update record (%s): %w", status, err)
	}
	return nil
}

func hashConflict(stored, incoming string) bool {
	return stored != "" && incoming != "" && stored != incoming
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
