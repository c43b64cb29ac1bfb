package dynamo

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/store"
)

// ScanItems runs one page of the cross-key-table scan, with the filter
// compiled to a server-side filter expression.
func (s *Store) ScanItems(ctx context.Context, table string, q store.ScanQuery) (*store.Page, error) {
	return store.ScanPage(ctx, segments{s}, table, q)
}

// segments adapts the DynamoDB catalog and Scan API to the shared
// pagination engine.
type segments struct {
	s *Store
}

func (g segments) ListKeyTables(ctx context.Context, table string) ([]string, error) {
	return g.s.registry.listKeyTables(ctx, table)
}

func (g segments) ScanSegment(ctx context.Context, keyTable, token string, limit int, filter *store.Coupling) ([]store.Document, string, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(keyTable),
		Limit:     aws.Int32(int32(limit)),
	}
	if !filter.Empty() {
		ectx := newExprContext()
		expr, err := compileCoupling(filter, ectx)
		if err != nil {
			return nil, "", err
		}
		input.FilterExpression = aws.String(expr)
		ectx.apply(&input.ExpressionAttributeNames, &input.ExpressionAttributeValues)
	}
	if token != "" {
		start, err := decodeStartKey(token)
		if err != nil {
			return nil, "", err
		}
		input.ExclusiveStartKey = start
	}

	out, err := g.s.client.Scan(ctx, input)
	if err != nil {
		return nil, "", mapError(err)
	}

	items := make([]store.Document, 0, len(out.Items))
	for _, raw := range out.Items {
		doc, err := unmarshalItem(raw)
		if err != nil {
			return nil, "", err
		}
		items = append(items, doc)
	}

	next := ""
	if len(out.LastEvaluatedKey) > 0 {
		if next, err = encodeStartKey(out.LastEvaluatedKey); err != nil {
			return nil, "", err
		}
	}
	return items, next, nil
}

// startKey is the wire form of a LastEvaluatedKey for a single-attribute
// hash key: attribute name, scalar type letter and the stored string form.
type startKey struct {
	Name  string `json:"n"`
	Type  string `json:"t"`
	Value string `json:"v"`
}

func encodeStartKey(key map[string]types.AttributeValue) (string, error) {
	for name, av := range key {
		sk := startKey{Name: name}
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			sk.Type, sk.Value = "S", v.Value
		case *types.AttributeValueMemberN:
			sk.Type, sk.Value = "N", v.Value
		case *types.AttributeValueMemberB:
			sk.Type, sk.Value = "B", base64.StdEncoding.EncodeToString(v.Value)
		default:
			return "", store.Errorf(store.StatusInternal, "unexpected scan key type %T", av)
		}
		raw, err := json.Marshal(sk)
		if err != nil {
			return "", store.WrapError(store.StatusInternal, "unencodable scan position", err)
		}
		return base64.RawURLEncoding.EncodeToString(raw), nil
	}
	return "", store.NewError(store.StatusInternal, "empty scan key")
}

func decodeStartKey(token string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, store.WrapError(store.StatusInvalidArgument, "undecodable scan position", err)
	}
	var sk startKey
	if err := json.Unmarshal(raw, &sk); err != nil {
		return nil, store.WrapError(store.StatusInvalidArgument, "undecodable scan position", err)
	}
	var av types.AttributeValue
	switch sk.Type {
	case "S":
		av = &types.AttributeValueMemberS{Value: sk.Value}
	case "N":
		av = &types.AttributeValueMemberN{Value: sk.Value}
	case "B":
		b, err := base64.StdEncoding.DecodeString(sk.Value)
		if err != nil {
			return nil, store.WrapError(store.StatusInvalidArgument, "undecodable scan position", err)
		}
		av = &types.AttributeValueMemberB{Value: b}
	default:
		return nil, store.Errorf(store.StatusInvalidArgument, "unknown scan key type %q", sk.Type)
	}
	return map[string]types.AttributeValue{sk.Name: av}, nil
}
