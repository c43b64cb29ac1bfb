package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/store"
)

// mapError translates a DynamoDB SDK failure into the lattice taxonomy.
// Expected backend conditions never surface as raw SDK errors; this is the
// single mapping point for the dynamo adapter.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return store.WrapError(store.StatusPreconditionFailed, "condition not met", err)
	}

	var txCanceled *types.TransactionCanceledException
	if errors.As(err, &txCanceled) {
		for _, reason := range txCanceled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed":
				return store.WrapError(store.StatusPreconditionFailed, "condition not met", err)
			case "TransactionConflict":
				return store.Transient(store.WrapError(store.StatusInternal, "transaction conflict", err))
			}
		}
		return store.WrapError(store.StatusInternal, "transaction canceled", err)
	}

	var txConflict *types.TransactionConflictException
	if errors.As(err, &txConflict) {
		return store.Transient(store.WrapError(store.StatusInternal, "transaction conflict", err))
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return store.WrapError(store.StatusNotFound, "key-table not found", err)
	}

	var throughput *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughput) {
		return store.Transient(store.WrapError(store.StatusUnavailable, "throughput exceeded", err))
	}

	var limit *types.RequestLimitExceeded
	if errors.As(err, &limit) {
		return store.Transient(store.WrapError(store.StatusUnavailable, "request limit exceeded", err))
	}

	return store.WrapError(store.StatusInternal, "dynamodb request failed", err)
}
