package kafkax

import (
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMeta(t *testing.T) {
	msg := kafka.Message{
		Topic: "billing.subscription.activated.v1",
		Key:   []byte("merchant-1"),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("evt-123")},
			{Key: "event_type", Value: []byte("billing.subscription.activated.v1")},
		},
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-123" || meta.EventType != "billing.subscription.activated.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{
		Topic: "scheduling.booking.confirmed.v1",
		Key:   []byte("booking-9"),
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "booking-9" {
		t.Fatalf("expected key fallback, got %q", meta.EventID)
	}
	if meta.EventType != "scheduling.booking.confirmed.v1" {
		t.Fatalf("expected topic fallback, got %q", meta.EventType)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092,")
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := SplitBrokers(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
