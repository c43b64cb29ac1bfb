package dynamo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/store"
)

// fakeClient satisfies Client with per-method function fields. Methods a
// test does not stub fail the request, so unexpected calls surface as test
// failures instead of hangs.
type fakeClient struct {
	getItem     func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItem     func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateItem  func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	deleteItem  func(*dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
	scan        func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	transact    func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
	describe    func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
	createTable func(*dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error)
	deleteTable func(*dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error)
	listTables  func(*dynamodb.ListTablesInput) (*dynamodb.ListTablesOutput, error)
}

var errUnexpectedCall = errors.New("unexpected client call")

func (f *fakeClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getItem == nil {
		return nil, errUnexpectedCall
	}
	return f.getItem(in)
}

func (f *fakeClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putItem == nil {
		return nil, errUnexpectedCall
	}
	return f.putItem(in)
}

func (f *fakeClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.updateItem == nil {
		return nil, errUnexpectedCall
	}
	return f.updateItem(in)
}

func (f *fakeClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.deleteItem == nil {
		return nil, errUnexpectedCall
	}
	return f.deleteItem(in)
}

func (f *fakeClient) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.scan == nil {
		return nil, errUnexpectedCall
	}
	return f.scan(in)
}

func (f *fakeClient) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.transact == nil {
		return nil, errUnexpectedCall
	}
	return f.transact(in)
}

func (f *fakeClient) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describe == nil {
		return nil, errUnexpectedCall
	}
	return f.describe(in)
}

func (f *fakeClient) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if f.createTable == nil {
		return nil, errUnexpectedCall
	}
	return f.createTable(in)
}

func (f *fakeClient) DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	if f.deleteTable == nil {
		return nil, errUnexpectedCall
	}
	return f.deleteTable(in)
}

func (f *fakeClient) ListTables(ctx context.Context, in *dynamodb.ListTablesInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if f.listTables == nil {
		return nil, errUnexpectedCall
	}
	return f.listTables(in)
}

// describeActive is the stub for an already-provisioned key-table.
func (f *fakeClient) describeActive(keyName string, at types.ScalarAttributeType) {
	f.describe = func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
		return activeTable(keyName, at), nil
	}
}

func activeTable(keyName string, at types.ScalarAttributeType) *dynamodb.DescribeTableOutput {
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableStatus: types.TableStatusActive,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(keyName), AttributeType: at},
		},
	}}
}

func transitioningTable(status types.TableStatus) *dynamodb.DescribeTableOutput {
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: status}}
}

// testConfig keeps polls and retries fast and logging quiet.
func testConfig() Config {
	return Config{
		Logger:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
		ActivationPollInterval: time.Millisecond,
		ActivationMaxPolls:     5,
		Retry:                  store.RetryPolicy{MaxAttempts: 3},
	}
}
