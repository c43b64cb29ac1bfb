package dynamo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/lattice/store"
)

// PutItem writes doc as the full item state, enforcing the overwrite guard
// and any condition inside the same write request.
func (s *Store) PutItem(ctx context.Context, table string, key store.Key, doc store.Document, opts store.PutOptions) (*store.MutationResult, error) {
	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}
	h, err := s.registry.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}
	item, err := marshalItem(doc, key)
	if err != nil {
		return nil, err
	}

	ectx := newExprContext()
	var guards []string
	if !opts.Overwrite {
		guards = append(guards, fmt.Sprintf("attribute_not_exists(%s)", ectx.name(h.keyName)))
	}
	if !opts.Condition.Empty() {
		expr, err := compileCoupling(opts.Condition, ectx)
		if err != nil {
			return nil, err
		}
		guards = append(guards, "("+expr+")")
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(h.physicalName),
		Item:      item,
	}
	if len(guards) > 0 {
		input.ConditionExpression = aws.String(strings.Join(guards, " AND "))
		ectx.apply(&input.ExpressionAttributeNames, &input.ExpressionAttributeValues)
	}
	if opts.Return == store.ReturnOld {
		input.ReturnValues = types.ReturnValueAllOld
	}

	out, err := s.client.PutItem(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}

	res := &store.MutationResult{}
	switch opts.Return {
	case store.ReturnOld:
		if len(out.Attributes) > 0 {
			if res.Attributes, err = unmarshalItem(out.Attributes); err != nil {
				return nil, err
			}
		}
	case store.ReturnNew:
		// A put supersedes the whole item; its new state is what was written.
		if res.Attributes, err = unmarshalItem(item); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// UpdateItem merges doc's attributes into the item with a SET expression,
// evaluating any condition atomically with the write.
func (s *Store) UpdateItem(ctx context.Context, table string, key store.Key, doc store.Document, opts store.UpdateOptions) (*store.MutationResult, error) {
	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}
	h, err := s.registry.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	ectx := newExprContext()
	var setClauses []string
	for attr, v := range doc {
		if attr == h.keyName {
			continue
		}
		vp, err := ectx.value(v)
		if err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", ectx.name(attr), vp))
	}
	if len(setClauses) == 0 {
		return nil, store.NewError(store.StatusInvalidArgument, "update carries no attributes")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(h.physicalName),
		Key:              keyAttr(h, key),
		UpdateExpression: aws.String("SET " + strings.Join(setClauses, ", ")),
	}
	if !opts.Condition.Empty() {
		expr, err := compileCoupling(opts.Condition, ectx)
		if err != nil {
			return nil, err
		}
		input.ConditionExpression = aws.String(expr)
	}
	ectx.apply(&input.ExpressionAttributeNames, &input.ExpressionAttributeValues)
	switch opts.Return {
	case store.ReturnOld:
		input.ReturnValues = types.ReturnValueAllOld
	case store.ReturnNew:
		input.ReturnValues = types.ReturnValueAllNew
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}
	res := &store.MutationResult{}
	if opts.Return != store.ReturnNone && len(out.Attributes) > 0 {
		if res.Attributes, err = unmarshalItem(out.Attributes); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// DeleteItem removes the item; deleting an absent item succeeds.
func (s *Store) DeleteItem(ctx context.Context, table string, key store.Key, opts store.DeleteOptions) (*store.MutationResult, error) {
	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}
	h, err := s.registry.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(h.physicalName),
		Key:       keyAttr(h, key),
	}
	if !opts.Condition.Empty() {
		ectx := newExprContext()
		expr, err := compileCoupling(opts.Condition, ectx)
		if err != nil {
			return nil, err
		}
		input.ConditionExpression = aws.String(expr)
		ectx.apply(&input.ExpressionAttributeNames, &input.ExpressionAttributeValues)
	}
	if opts.Return == store.ReturnOld {
		input.ReturnValues = types.ReturnValueAllOld
	}

	out, err := s.client.DeleteItem(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}
	res := &store.MutationResult{}
	if opts.Return == store.ReturnOld && len(out.Attributes) > 0 {
		if res.Attributes, err = unmarshalItem(out.Attributes); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// AddArrayElements appends elements with a server-side list_append, creating
// the array when the attribute is absent. A present non-array attribute
// fails the ride-along type guard with ErrPreconditionFailed.
func (s *Store) AddArrayElements(ctx context.Context, table string, key store.Key, attribute string, elements []any, ret store.ReturnBehavior) (*store.MutationResult, error) {
	if err := store.ValidateElements(elements); err != nil {
		return nil, err
	}
	h, err := s.registry.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	elemsAV, err := attributevalue.Marshal(elements)
	if err != nil {
		return nil, store.WrapError(store.StatusInvalidArgument, "unmarshalable elements", err)
	}

	ectx := newExprContext()
	a := ectx.name(attribute)
	emptyP := ectx.valueAV(&types.AttributeValueMemberL{Value: []types.AttributeValue{}})
	elemsP := ectx.valueAV(elemsAV)
	typeP := ectx.valueAV(&types.AttributeValueMemberS{Value: "L"})

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(h.physicalName),
		Key:       keyAttr(h, key),
		UpdateExpression: aws.String(fmt.Sprintf(
			"SET %s = list_append(if_not_exists(%s, %s), %s)", a, a, emptyP, elemsP)),
		ConditionExpression: aws.String(fmt.Sprintf(
			"attribute_not_exists(%s) OR attribute_type(%s, %s)", a, a, typeP)),
	}
	ectx.apply(&input.ExpressionAttributeNames, &input.ExpressionAttributeValues)
	switch ret {
	case store.ReturnOld:
		input.ReturnValues = types.ReturnValueUpdatedOld
	case store.ReturnNew:
		input.ReturnValues = types.ReturnValueUpdatedNew
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}
	res := &store.MutationResult{}
	if ret != store.ReturnNone && len(out.Attributes) > 0 {
		if res.Attributes, err = unmarshalItem(out.Attributes); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// RemoveArrayElements deletes every element matching the removal set by
// canonical equality. DynamoDB has no server-side remove-by-value, so this
// is a transactional read-modify-write: read the list, rewrite it under an
// equality guard, and retry on contention within the configured budget.
func (s *Store) RemoveArrayElements(ctx context.Context, table string, key store.Key, attribute string, elements []any, ret store.ReturnBehavior) (*store.RemoveResult, error) {
	if err := store.ValidateElements(elements); err != nil {
		return nil, err
	}
	h, err := s.registry.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	removal := make(map[string]bool, len(elements))
	for _, el := range elements {
		canon, _ := store.CanonicalElement(el)
		removal[canon] = true
	}

	var res *store.RemoveResult
	err = s.config.Retry.Do(ctx, func() error {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(h.physicalName),
			Key:            keyAttr(h, key),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return mapError(err)
		}
		if out.Item == nil {
			res = &store.RemoveResult{}
			return nil
		}
		doc, err := unmarshalItem(out.Item)
		if err != nil {
			return err
		}
		cur, present := doc[attribute]
		if !present {
			res = &store.RemoveResult{}
			return nil
		}
		arr, ok := cur.([]any)
		if !ok {
			return store.Errorf(store.StatusPreconditionFailed,
				"attribute %q holds a %s, not an array", attribute, store.KindOf(cur))
		}

		kept := make([]any, 0, len(arr))
		var removed []any
		for _, el := range arr {
			if canon, ok := store.CanonicalElement(el); ok && removal[canon] {
				removed = append(removed, el)
				continue
			}
			kept = append(kept, el)
		}
		if len(removed) == 0 {
			res = &store.RemoveResult{}
			return nil
		}

		oldAV, err := attributevalue.Marshal(arr)
		if err != nil {
			return store.WrapError(store.StatusInternal, "re-marshal of read list failed", err)
		}
		keptAV, err := attributevalue.Marshal(kept)
		if err != nil {
			return store.WrapError(store.StatusInternal, "marshal of rewritten list failed", err)
		}

		ectx := newExprContext()
		a := ectx.name(attribute)
		keptP := ectx.valueAV(keptAV)
		oldP := ectx.valueAV(oldAV)
		update := &types.Update{
			TableName:           aws.String(h.physicalName),
			Key:                 keyAttr(h, key),
			UpdateExpression:    aws.String(fmt.Sprintf("SET %s = %s", a, keptP)),
			ConditionExpression: aws.String(fmt.Sprintf("%s = %s", a, oldP)),
		}
		ectx.apply(&update.ExpressionAttributeNames, &update.ExpressionAttributeValues)

		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems:      []types.TransactWriteItem{{Update: update}},
			ClientRequestToken: aws.String(uuid.NewString()),
		})
		if err != nil {
			mapped := mapError(err)
			if store.StatusOf(mapped) == store.StatusPreconditionFailed {
				// The list changed between the read and the write.
				s.config.Logger.Debug("array removal lost a write race, retrying",
					"table", h.physicalName, "attribute", attribute)
				return store.Transient(mapped)
			}
			return mapped
		}

		res = &store.RemoveResult{Removed: removed}
		switch ret {
		case store.ReturnOld:
			res.Attributes = store.Document{attribute: arr}
		case store.ReturnNew:
			res.Attributes = store.Document{attribute: kept}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// IncrementAttribute performs a native atomic ADD, with implicit zero
// initialization when the attribute is absent, and returns the result.
func (s *Store) IncrementAttribute(ctx context.Context, table string, key store.Key, attribute string, delta float64) (float64, error) {
	h, err := s.registry.resolve(ctx, table, key)
	if err != nil {
		return 0, err
	}

	ectx := newExprContext()
	a := ectx.name(attribute)
	deltaP, err := ectx.value(delta)
	if err != nil {
		return 0, err
	}
	typeP := ectx.valueAV(&types.AttributeValueMemberS{Value: "N"})

	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(h.physicalName),
		Key:              keyAttr(h, key),
		UpdateExpression: aws.String(fmt.Sprintf("ADD %s %s", a, deltaP)),
		ConditionExpression: aws.String(fmt.Sprintf(
			"attribute_not_exists(%s) OR attribute_type(%s, %s)", a, a, typeP)),
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	ectx.apply(&input.ExpressionAttributeNames, &input.ExpressionAttributeValues)

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return 0, mapError(err)
	}
	doc, err := unmarshalItem(out.Attributes)
	if err != nil {
		return 0, err
	}
	n, ok := store.NumberValue(doc[attribute])
	if !ok {
		return 0, store.Errorf(store.StatusInternal, "increment of %q returned a non-number", attribute)
	}
	return n, nil
}

// keyAttr builds the primary-key map for one item.
func keyAttr(h *handle, key store.Key) map[string]types.AttributeValue {
	av, err := attributevalue.Marshal(key.Value)
	if err != nil {
		// Key kinds are validated at resolve time; string, integer and
		// double values always marshal.
		panic(err)
	}
	return map[string]types.AttributeValue{h.keyName: av}
}

// marshalItem converts a document plus its key into a DynamoDB item.
func marshalItem(doc store.Document, key store.Key) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(map[string]any(doc))
	if err != nil {
		return nil, store.WrapError(store.StatusInvalidArgument, "unmarshalable document", err)
	}
	av, err := attributevalue.Marshal(key.Value)
	if err != nil {
		return nil, store.WrapError(store.StatusInvalidArgument, "unmarshalable key value", err)
	}
	item[key.Name] = av
	return item, nil
}

// unmarshalItem converts a DynamoDB item back into a document.
func unmarshalItem(item map[string]types.AttributeValue) (store.Document, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, store.WrapError(store.StatusInternal, "undecodable item", err)
	}
	return store.NormalizeDocument(doc), nil
}
