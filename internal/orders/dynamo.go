package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/stablepay/go-commerce-gateway/internal/aws"
)

// DynamoStore keeps orders in a DynamoDB table. The idempotency table name
// is carried so CreateWithReceipt can settle both records in one
// TransactWriteItems call.
type DynamoStore struct {
	client           aws.DynamoDBAPI
	tableName        string
	idempotencyTable string
	nowFunc          func() time.Time
}

// NewDynamoStore creates a new orders DynamoStore.
func NewDynamoStore(client aws.DynamoDBAPI, tableName, idempotencyTable string) *DynamoStore {
	return &DynamoStore{
		client:           client,
		tableName:        tableName,
		idempotencyTable: idempotencyTable,
		nowFunc:          time.Now,
	}
}

func (s *DynamoStore) stamp(o *Order) {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
}

// Create persists o guarded on attribute_not_exists(order_id).
func (s *DynamoStore) Create(ctx context.Context, o Order) (bool, error) {
	s.stamp(&o)
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return false, fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("put order: %w", err)
	}
	return true, nil
}

// CreateWithReceipt writes the order and flips the idempotency record to
// DONE in a single transaction, so a crash between the two cannot leave a
// completed receipt without its order.
func (s *DynamoStore) CreateWithReceipt(ctx context.Context, o Order, r Receipt) (bool, error) {
	s.stamp(&o)
	orderItem, err := attributevalue.MarshalMap(o)
	if err != nil {
		return false, fmt.Errorf("marshal order: %w", err)
	}
	now, err := attributevalue.Marshal(s.nowFunc().UTC())
	if err != nil {
		return false, fmt.Errorf("marshal timestamp: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderItem,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
			{
				Update: &types.Update{
					TableName: &s.idempotencyTable,
					Key: map[string]types.AttributeValue{
						"record_key": &types.AttributeValueMemberS{Value: r.Key},
					},
					UpdateExpression: awsString("SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua"),
					ExpressionAttributeNames: map[string]string{
						"#s": "status",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":done": &types.AttributeValueMemberS{Value: "DONE"},
						":rb":   &types.AttributeValueMemberS{Value: r.ResponseBody},
						":rs":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", r.ResponseStatus)},
						":ua":   now,
					},
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			// order id collision; the receipt stays open for a retry
			return false, nil
		}
		return false, fmt.Errorf("transact order+receipt: %w", err)
	}
	return true, nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// UpdateStatus conditionally transitions the order from expected to next.
func (s *DynamoStore) UpdateStatus(ctx context.Context, orderID, expected, next string) error {
	now, err := attributevalue.Marshal(s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("marshal timestamp: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :next, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":next":     &types.AttributeValueMemberS{Value: next},
			":expected": &types.AttributeValueMemberS{Value: expected},
			":ua":       now,
		},
		ConditionExpression: awsString("#s = :expected"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func awsString(s string) *string { return &s }
