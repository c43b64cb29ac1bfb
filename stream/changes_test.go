package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

const ordersArn = "arn:aws:dynamodb:us-east-1:123456789012:table/orders-orderId/stream/2026-08-30T00:00:00.000"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collectSink records every delivered change.
type collectSink struct {
	changes []Change
	err     error
}

func (c *collectSink) HandleChange(_ context.Context, change Change) error {
	if c.err != nil {
		return c.err
	}
	c.changes = append(c.changes, change)
	return nil
}

func record(eventName, arn string, keys, old, new map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:        "evt-1",
		EventName:      eventName,
		EventSourceArn: arn,
		Change: events.DynamoDBStreamRecord{
			Keys:     keys,
			OldImage: old,
			NewImage: new,
		},
	}
}

func TestHandleEvent_DecodesChanges(t *testing.T) {
	keys := map[string]events.DynamoDBAttributeValue{
		"orderId": events.NewStringAttribute("A1"),
	}
	oldImage := map[string]events.DynamoDBAttributeValue{
		"orderId": events.NewStringAttribute("A1"),
		"total":   events.NewNumberAttribute("10"),
	}
	newImage := map[string]events.DynamoDBAttributeValue{
		"orderId": events.NewStringAttribute("A1"),
		"total":   events.NewNumberAttribute("15"),
		"open":    events.NewBooleanAttribute(true),
	}

	sink := &collectSink{}
	h := NewHandler(sink, quietLogger())
	err := h.HandleEvent(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", ordersArn, keys, nil, oldImage),
		record("MODIFY", ordersArn, keys, oldImage, newImage),
		record("REMOVE", ordersArn, keys, newImage, nil),
	}})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(sink.changes) != 3 {
		t.Fatalf("changes = %d, want 3", len(sink.changes))
	}

	ins := sink.changes[0]
	if ins.Type != ChangeInsert || ins.Table != "orders" || ins.KeyName != "orderId" || ins.KeyValue != "A1" {
		t.Errorf("insert = %+v", ins)
	}
	if ins.Old != nil {
		t.Errorf("insert Old = %v, want nil", ins.Old)
	}
	if ins.New["total"] != float64(10) {
		t.Errorf("insert New = %v", ins.New)
	}

	mod := sink.changes[1]
	if mod.Type != ChangeModify || mod.Old["total"] != float64(10) || mod.New["total"] != float64(15) {
		t.Errorf("modify = %+v", mod)
	}
	if mod.New["open"] != true {
		t.Errorf("modify New = %v", mod.New)
	}

	rem := sink.changes[2]
	if rem.Type != ChangeRemove || rem.New != nil || rem.Old["total"] != float64(15) {
		t.Errorf("remove = %+v", rem)
	}
}

func TestHandleEvent_NumericKey(t *testing.T) {
	arn := "arn:aws:dynamodb:us-east-1:123456789012:table/events-seq/stream/2026-08-30T00:00:00.000"
	keys := map[string]events.DynamoDBAttributeValue{
		"seq": events.NewNumberAttribute("42"),
	}
	sink := &collectSink{}
	h := NewHandler(sink, quietLogger())
	err := h.HandleEvent(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", arn, keys, nil, keys),
	}})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(sink.changes) != 1 || sink.changes[0].KeyValue != float64(42) {
		t.Errorf("changes = %+v, want one with key 42", sink.changes)
	}
	if sink.changes[0].Table != "events" || sink.changes[0].KeyName != "seq" {
		t.Errorf("change = %+v", sink.changes[0])
	}
}

func TestHandleEvent_SkipsForeignRecords(t *testing.T) {
	sink := &collectSink{}
	h := NewHandler(sink, quietLogger())

	compositeKeys := map[string]events.DynamoDBAttributeValue{
		"pk": events.NewStringAttribute("a"),
		"sk": events.NewStringAttribute("b"),
	}
	// Table name does not end in "-<keyName>".
	foreignArn := "arn:aws:dynamodb:us-east-1:123456789012:table/legacy_table/stream/2026-08-30T00:00:00.000"
	singleKey := map[string]events.DynamoDBAttributeValue{
		"orderId": events.NewStringAttribute("A1"),
	}

	err := h.HandleEvent(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", ordersArn, compositeKeys, nil, nil),
		record("INSERT", foreignArn, singleKey, nil, nil),
		record("PING", ordersArn, singleKey, nil, nil),
		record("INSERT", ordersArn, singleKey, nil, nil),
	}})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(sink.changes) != 1 {
		t.Errorf("changes = %+v, want only the last record", sink.changes)
	}
}

func TestHandleEvent_SinkFailureStopsBatch(t *testing.T) {
	singleKey := map[string]events.DynamoDBAttributeValue{
		"orderId": events.NewStringAttribute("A1"),
	}
	boom := errors.New("notification relay down")
	sink := &collectSink{err: boom}
	h := NewHandler(sink, quietLogger())

	err := h.HandleEvent(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", ordersArn, singleKey, nil, nil),
		record("MODIFY", ordersArn, singleKey, nil, nil),
	}})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the sink failure", err)
	}
}

func TestHandleEvent_BadArnFailsBatch(t *testing.T) {
	singleKey := map[string]events.DynamoDBAttributeValue{
		"orderId": events.NewStringAttribute("A1"),
	}
	sink := &collectSink{}
	h := NewHandler(sink, quietLogger())

	err := h.HandleEvent(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "arn:aws:dynamodb:us-east-1:123456789012:stream-only", singleKey, nil, nil),
	}})
	if err == nil {
		t.Error("a record without a table ARN must fail the batch")
	}
}

func TestTableFromStreamArn(t *testing.T) {
	tests := []struct {
		arn     string
		want    string
		wantErr bool
	}{
		{ordersArn, "orders-orderId", false},
		{"arn:aws:dynamodb:eu-west-1:1:table/t", "t", false},
		{"arn:aws:dynamodb:eu-west-1:1:table//stream/x", "", true},
		{"arn:aws:dynamodb:eu-west-1:1:nothing", "", true},
	}
	for _, tt := range tests {
		got, err := tableFromStreamArn(tt.arn)
		if tt.wantErr {
			if err == nil {
				t.Errorf("tableFromStreamArn(%q) = %q, want error", tt.arn, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("tableFromStreamArn(%q) = %q, %v, want %q", tt.arn, got, err, tt.want)
		}
	}
}

func TestConvertAttr(t *testing.T) {
	tests := []struct {
		name string
		av   events.DynamoDBAttributeValue
		want any
	}{
		{"string", events.NewStringAttribute("x"), "x"},
		{"number", events.NewNumberAttribute("4.5"), 4.5},
		{"bool", events.NewBooleanAttribute(false), false},
		{"null", events.NewNullAttribute(), nil},
		{
			"list",
			events.NewListAttribute([]events.DynamoDBAttributeValue{
				events.NewStringAttribute("a"),
				events.NewNumberAttribute("3"),
			}),
			[]any{"a", float64(3)},
		},
		{
			"map",
			events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
				"city": events.NewStringAttribute("Lisbon"),
			}),
			map[string]any{"city": "Lisbon"},
		},
		{
			"string set",
			events.NewStringSetAttribute([]string{"a", "b"}),
			[]any{"a", "b"},
		},
		{
			"number set",
			events.NewNumberSetAttribute([]string{"1", "2.5"}),
			[]any{float64(1), 2.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertAttr(tt.av)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("convertAttr = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSinkFunc(t *testing.T) {
	called := false
	var sink Sink = SinkFunc(func(context.Context, Change) error {
		called = true
		return nil
	})
	if err := sink.HandleChange(context.Background(), Change{}); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if !called {
		t.Error("SinkFunc must dispatch to the wrapped function")
	}
}
