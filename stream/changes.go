// Package stream bridges DynamoDB Streams events into lattice document
// change records, for Lambda-driven consumers such as notification relays.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/lattice/store"
)

// ChangeType classifies a stream record.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeModify ChangeType = "MODIFY"
	ChangeRemove ChangeType = "REMOVE"
)

// Change is one decoded document change.
type Change struct {
	Type ChangeType

	// Table is the logical table name and KeyName the key attribute,
	// recovered from the physical key-table name.
	Table   string
	KeyName string

	// KeyValue is the changed item's key value.
	KeyValue any

	// Old and New are the document images around the change; Old is nil for
	// inserts and New is nil for removals.
	Old, New store.Document
}

// Sink consumes decoded changes.
type Sink interface {
	HandleChange(ctx context.Context, change Change) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, change Change) error

func (f SinkFunc) HandleChange(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// Handler decodes DynamoDB stream events and dispatches them to a sink.
// It is designed to be used as an AWS Lambda handler.
type Handler struct {
	sink   Sink
	logger *slog.Logger
}

// NewHandler creates a stream handler.
func NewHandler(sink Sink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sink: sink, logger: logger}
}

// HandleEvent processes one batch of stream records. A sink failure stops
// the batch and is returned so the Lambda runtime retries it, eventually to
// a DLQ.
func (h *Handler) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		change, ok, err := decodeRecord(record)
		if err != nil {
			h.logger.Error("failed to decode stream record",
				"eventID", record.EventID,
				"error", err,
			)
			return err
		}
		if !ok {
			continue
		}
		if err := h.sink.HandleChange(ctx, change); err != nil {
			h.logger.Error("sink rejected change",
				"eventID", record.EventID,
				"table", change.Table,
				"error", err,
			)
			return err
		}
	}
	return nil
}

// decodeRecord converts one stream record to a Change. Records without a
// recognizable single-attribute key are skipped rather than failed, since
// non-lattice tables can share a stream.
func decodeRecord(record events.DynamoDBEventRecord) (Change, bool, error) {
	if len(record.Change.Keys) != 1 {
		return Change{}, false, nil
	}

	change := Change{Type: ChangeType(record.EventName)}
	switch change.Type {
	case ChangeInsert, ChangeModify, ChangeRemove:
	default:
		return Change{}, false, nil
	}

	for name, av := range record.Change.Keys {
		change.KeyName = name
		change.KeyValue = convertAttr(av)
	}

	physical, err := tableFromStreamArn(record.EventSourceArn)
	if err != nil {
		return Change{}, false, err
	}
	suffix := "-" + change.KeyName
	if !strings.HasSuffix(physical, suffix) {
		return Change{}, false, nil
	}
	change.Table = strings.TrimSuffix(physical, suffix)

	if len(record.Change.OldImage) > 0 {
		change.Old = convertImage(record.Change.OldImage)
	}
	if len(record.Change.NewImage) > 0 {
		change.New = convertImage(record.Change.NewImage)
	}
	return change, true, nil
}

// tableFromStreamArn extracts the table name from an event source ARN of
// the form arn:aws:dynamodb:region:account:table/NAME/stream/TIMESTAMP.
func tableFromStreamArn(arn string) (string, error) {
	const marker = ":table/"
	i := strings.Index(arn, marker)
	if i < 0 {
		return "", fmt.Errorf("no table in event source arn %q", arn)
	}
	rest := arn[i+len(marker):]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", fmt.Errorf("no table in event source arn %q", arn)
	}
	return rest, nil
}

// convertImage converts a stream image into a document.
func convertImage(image map[string]events.DynamoDBAttributeValue) store.Document {
	doc := make(store.Document, len(image))
	for name, av := range image {
		doc[name] = convertAttr(av)
	}
	return doc
}

// convertAttr converts one stream attribute value into the document
// vocabulary. Numbers decode as float64 to match the dynamo backend's item
// decoding.
func convertAttr(av events.DynamoDBAttributeValue) any {
	switch av.DataType() {
	case events.DataTypeString:
		return av.String()
	case events.DataTypeNumber:
		n, err := strconv.ParseFloat(av.Number(), 64)
		if err != nil {
			return av.Number()
		}
		return n
	case events.DataTypeBoolean:
		return av.Boolean()
	case events.DataTypeBinary:
		return av.Binary()
	case events.DataTypeNull:
		return nil
	case events.DataTypeList:
		list := av.List()
		out := make([]any, len(list))
		for i, el := range list {
			out[i] = convertAttr(el)
		}
		return out
	case events.DataTypeMap:
		m := av.Map()
		out := make(map[string]any, len(m))
		for k, el := range m {
			out[k] = convertAttr(el)
		}
		return out
	case events.DataTypeStringSet:
		set := av.StringSet()
		out := make([]any, len(set))
		for i, el := range set {
			out[i] = el
		}
		return out
	case events.DataTypeNumberSet:
		set := av.NumberSet()
		out := make([]any, len(set))
		for i, el := range set {
			if n, err := strconv.ParseFloat(el, 64); err == nil {
				out[i] = n
			} else {
				out[i] = el
			}
		}
		return out
	default:
		return nil
	}
}
