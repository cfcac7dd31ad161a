package orders

import (
	"context"
	"errors"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableMock models two tables (orders + idempotency) with just enough
// conditional-write behavior for the store under test.
type tableMock struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newTableMock() *tableMock {
	return &tableMock{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *tableMock) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.tables[name] = t
	}
	return t
}

func attrS(item map[string]types.AttributeValue, name string) string {
	if av, ok := item[name].(*types.AttributeValueMemberS); ok {
		return av.Value
	}
	return ""
}

func keyOf(item map[string]types.AttributeValue) string {
	if v := attrS(item, "order_id"); v != "" {
		return v
	}
	return attrS(item, "record_key")
}

func (m *tableMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(*params.TableName)
	k := keyOf(params.Item)
	if k == "" {
		return nil, errors.New("missing key attribute")
	}
	if params.ConditionExpression != nil {
		if _, exists := t[k]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	t[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *tableMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(*params.TableName)
	item, ok := t[keyOf(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *tableMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(*params.TableName)
	k := keyOf(params.Key)
	item, ok := t[k]
	if !ok {
		// DynamoDB reports a failed condition for a missing item too
		if params.ConditionExpression != nil {
			return nil, &types.ConditionalCheckFailedException{}
		}
		return nil, errors.New("item not found")
	}

	if params.ConditionExpression != nil && *params.ConditionExpression == "#s = :expected" {
		want, _ := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS)
		if attrS(item, "status") != want.Value {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	if v, ok := params.ExpressionAttributeValues[":next"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	t[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *tableMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// first pass: check conditions
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil && p.ConditionExpression != nil {
			t := m.table(*p.TableName)
			if _, exists := t[keyOf(p.Item)]; exists {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	// second pass: apply
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			m.table(*p.TableName)[keyOf(p.Item)] = p.Item
		}
		if u := it.Update; u != nil {
			t := m.table(*u.TableName)
			k := keyOf(u.Key)
			item, ok := t[k]
			if !ok {
				item = map[string]types.AttributeValue{}
				for kk, vv := range u.Key {
					item[kk] = vv
				}
			}
			if v, ok := u.ExpressionAttributeValues[":done"]; ok {
				item["status"] = v
			}
			if v, ok := u.ExpressionAttributeValues[":rb"]; ok {
				item["response_body"] = v
			}
			if v, ok := u.ExpressionAttributeValues[":rs"]; ok {
				item["response_status"] = v
			}
			t[k] = item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
