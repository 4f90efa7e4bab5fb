// Package testutil provides an in-memory DynamoDB fake for store tests. It
// interprets only the condition and update expressions the stores actually
// emit: attribute_exists / attribute_not_exists, equality and >= comparisons,
// and SET assignments including "attr = attr + :v" arithmetic.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	pk    string
	items map[string]map[string]types.AttributeValue
}

// FakeDynamo is a thread-safe in-memory stand-in for the DynamoDB client.
type FakeDynamo struct {
	mu     sync.Mutex
	tables map[string]*table
}

// NewFakeDynamo returns an empty fake; register tables with CreateTable.
func NewFakeDynamo() *FakeDynamo {
	return &FakeDynamo{tables: map[string]*table{}}
}

// CreateTable registers a table with its partition key attribute.
func (f *FakeDynamo) CreateTable(name, pk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{pk: pk, items: map[string]map[string]types.AttributeValue{}}
}

// Item returns the raw stored item for test assertions, or nil.
func (f *FakeDynamo) Item(tableName, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	return t.items[key]
}

// Len returns the number of items in a table.
func (f *FakeDynamo) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return 0
	}
	return len(t.items)
}

func (f *FakeDynamo) table(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("missing table name")
	}
	t, ok := f.tables[*name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", *name)
	}
	return t, nil
}

func stringAttr(v types.AttributeValue) (string, bool) {
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func keyValue(t *table, key map[string]types.AttributeValue) (string, error) {
	attr, ok := key[t.pk]
	if !ok {
		return "", fmt.Errorf("missing key attribute %q", t.pk)
	}
	s, ok := stringAttr(attr)
	if !ok {
		return "", fmt.Errorf("key attribute %q is not a string", t.pk)
	}
	return s, nil
}

func resolveName(tok string, names map[string]string) string {
	if strings.HasPrefix(tok, "#") {
		if real, ok := names[tok]; ok {
			return real
		}
	}
	return tok
}

func numeric(v types.AttributeValue) (float64, bool) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func attrsEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		x, _ := strconv.ParseFloat(av.Value, 64)
		y, _ := strconv.ParseFloat(bv.Value, 64)
		return x == y
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

// evalCondition evaluates an " AND "-joined condition against an item
// (nil item = no such row).
func evalCondition(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		ok, err := evalClause(item, clause, names, values)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(item map[string]types.AttributeValue, clause string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
		attr := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
		if item == nil {
			return true, nil
		}
		_, exists := item[attr]
		return !exists, nil

	case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
		attr := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
		if item == nil {
			return false, nil
		}
		_, exists := item[attr]
		return exists, nil

	case strings.Contains(clause, " >= "):
		parts := strings.SplitN(clause, " >= ", 2)
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		want, ok := values[strings.TrimSpace(parts[1])]
		if !ok {
			return false, fmt.Errorf("missing value %s", parts[1])
		}
		if item == nil {
			return false, nil
		}
		have, okHave := numeric(item[attr])
		target, okWant := numeric(want)
		if !okHave || !okWant {
			return false, fmt.Errorf("non-numeric comparison in %q", clause)
		}
		return have >= target, nil

	case strings.Contains(clause, " = "):
		parts := strings.SplitN(clause, " = ", 2)
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		want, ok := values[strings.TrimSpace(parts[1])]
		if !ok {
			return false, fmt.Errorf("missing value %s", parts[1])
		}
		if item == nil {
			return false, nil
		}
		have, exists := item[attr]
		if !exists {
			return false, nil
		}
		return attrsEqual(have, want), nil
	}
	return false, fmt.Errorf("unsupported condition clause %q", clause)
}

// applyUpdate applies a "SET a = :v, b = b + :d" style update expression.
func applyUpdate(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	for _, assign := range strings.Split(expr[len("SET "):], ", ") {
		parts := strings.SplitN(assign, " = ", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad assignment %q", assign)
		}
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		rhs := strings.TrimSpace(parts[1])

		if strings.Contains(rhs, " + ") {
			ops := strings.SplitN(rhs, " + ", 2)
			base := resolveName(strings.TrimSpace(ops[0]), names)
			delta, ok := values[strings.TrimSpace(ops[1])]
			if !ok {
				return fmt.Errorf("missing value %s", ops[1])
			}
			cur, okCur := numeric(item[base])
			d, okDelta := numeric(delta)
			if !okCur || !okDelta {
				return fmt.Errorf("non-numeric arithmetic in %q", assign)
			}
			item[attr] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(cur+d, 'f', -1, 64)}
			continue
		}

		val, ok := values[rhs]
		if !ok {
			return fmt.Errorf("missing value %s", rhs)
		}
		item[attr] = val
	}
	return nil
}

func (f *FakeDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := keyValue(t, params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil {
		ok, err := evalCondition(t.items[key], *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	t.items[key] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (f *FakeDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := keyValue(t, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (f *FakeDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := keyValue(t, params.Key)
	if err != nil {
		return nil, err
	}
	item := t.items[key]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(item, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if item == nil {
		item = map[string]types.AttributeValue{t.pk: params.Key[t.pk]}
		t.items[key] = item
	}
	if params.UpdateExpression != nil {
		if err := applyUpdate(item, *params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (f *FakeDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := keyValue(t, params.Key)
	if err != nil {
		return nil, err
	}
	delete(t.items, key)
	return &dyn.DeleteItemOutput{}, nil
}

func (f *FakeDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("missing key condition")
	}

	var matches []map[string]types.AttributeValue
	for _, item := range t.items {
		ok, err := evalCondition(item, *params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, item)
		}
	}

	// GSIs here sort on created_at (RFC3339 sorts chronologically)
	descending := params.ScanIndexForward != nil && !*params.ScanIndexForward
	sort.Slice(matches, func(i, j int) bool {
		a, _ := stringAttr(matches[i]["created_at"])
		b, _ := stringAttr(matches[j]["created_at"])
		if descending {
			return a > b
		}
		return a < b
	})
	return &dyn.QueryOutput{Items: matches}, nil
}

func (f *FakeDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	var matches []map[string]types.AttributeValue
	for _, item := range t.items {
		if params.FilterExpression != nil {
			ok, err := evalCondition(item, *params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matches = append(matches, item)
	}
	return &dyn.ScanOutput{Items: matches}, nil
}

func (f *FakeDynamo) BatchGetItem(ctx context.Context, params *dyn.BatchGetItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := &dyn.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for tableName, req := range params.RequestItems {
		name := tableName
		t, err := f.table(&name)
		if err != nil {
			return nil, err
		}
		for _, key := range req.Keys {
			k, err := keyValue(t, key)
			if err != nil {
				return nil, err
			}
			if item, ok := t.items[k]; ok {
				out.Responses[tableName] = append(out.Responses[tableName], item)
			}
		}
	}
	return out, nil
}

func (f *FakeDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// phase 1: evaluate every condition; fail the whole batch if any fails
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, ti := range params.TransactItems {
		code := "None"
		switch {
		case ti.Put != nil:
			t, err := f.table(ti.Put.TableName)
			if err != nil {
				return nil, err
			}
			key, err := keyValue(t, ti.Put.Item)
			if err != nil {
				return nil, err
			}
			if ti.Put.ConditionExpression != nil {
				ok, err := evalCondition(t.items[key], *ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues)
				if err != nil {
					return nil, err
				}
				if !ok {
					code = "ConditionalCheckFailed"
					failed = true
				}
			}
		case ti.Update != nil:
			t, err := f.table(ti.Update.TableName)
			if err != nil {
				return nil, err
			}
			key, err := keyValue(t, ti.Update.Key)
			if err != nil {
				return nil, err
			}
			if ti.Update.ConditionExpression != nil {
				ok, err := evalCondition(t.items[key], *ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues)
				if err != nil {
					return nil, err
				}
				if !ok {
					code = "ConditionalCheckFailed"
					failed = true
				}
			}
		default:
			return nil, errors.New("unsupported transact item")
		}
		c := code
		reasons[i] = types.CancellationReason{Code: &c}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	// phase 2: apply
	for _, ti := range params.TransactItems {
		switch {
		case ti.Put != nil:
			t, _ := f.table(ti.Put.TableName)
			key, _ := keyValue(t, ti.Put.Item)
			t.items[key] = ti.Put.Item
		case ti.Update != nil:
			t, _ := f.table(ti.Update.TableName)
			key, _ := keyValue(t, ti.Update.Key)
			item := t.items[key]
			if item == nil {
				item = map[string]types.AttributeValue{t.pk: ti.Update.Key[t.pk]}
				t.items[key] = item
			}
			if ti.Update.UpdateExpression != nil {
				if err := applyUpdate(item, *ti.Update.UpdateExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues); err != nil {
					return nil, err
				}
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
