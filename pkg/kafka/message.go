package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Ramsey-B/juniper/pkg/record"
)

// Output message types
const (
	MessageTypeCanonicalRecord = "canonical_record"
	MessageTypeTaxRequest      = "tax_request"
	MessageTypeTaxCalculation  = "tax_calculation"
	MessageTypeError           = "error"
)

// StripeEvent is the webhook event envelope the platform emits. Only the
// fields the pipeline reads are modeled; data.object stays raw until it is
// decoded into a record.Object.
type StripeEvent struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Account  string          `json:"account,omitempty"`
	Created  int64           `json:"created"`
	Livemode bool            `json:"livemode"`
	Data     StripeEventData `json:"data"`
}

type StripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// ParseStripeEvent parses a raw Kafka message value into a StripeEvent
func ParseStripeEvent(data []byte) (*StripeEvent, error) {
	var event StripeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if len(event.Data.Object) == 0 || string(event.Data.Object) == "null" {
		return nil, errors.New("event has no data.object")
	}
	return &event, nil
}

// Object decodes data.object, keeping numbers exact.
func (e *StripeEvent) Object() (record.Object, error) {
	return record.Decode(e.Data.Object)
}

// MessageSource identifies what an output message was produced from
type MessageSource struct {
	Platform      string `json:"platform"`
	CorporationID string `json:"corporation_id,omitempty"`
	EventID       string `json:"event_id,omitempty"`
	EventType     string `json:"event_type,omitempty"`
	PlatformID    string `json:"platform_id,omitempty"`
}

// OutputMessage is what juniper produces to its output topics.
type OutputMessage struct {
	Source    MessageSource `json:"source"`
	Type      string        `json:"type"`
	Kind      record.Kind   `json:"kind,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Data      any           `json:"data"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// ToJSON serializes the OutputMessage to JSON bytes
func (m *OutputMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Key is the partition key: records of one source object stay ordered.
func (m *OutputMessage) Key() string {
	return m.Source.CorporationID + ":" + m.Source.PlatformID
}

// MessageHeaders contains Kafka message headers for efficient filtering
type MessageHeaders struct {
	CorporationID  string
	SourcePlatform string
	EventID        string
	Kind           string
	MessageType    string
	TraceParent    string
	TraceState     string
}

// ToKafkaHeaders converts MessageHeaders to a slice of header key-value pairs
func (h *MessageHeaders) ToKafkaHeaders() []Header {
	headers := make([]Header, 0, 7)

	if h.CorporationID != "" {
		headers = append(headers, Header{Key: "corporation_id", Value: []byte(h.CorporationID)})
	}
	if h.SourcePlatform != "" {
		headers = append(headers, Header{Key: "source_platform", Value: []byte(h.SourcePlatform)})
	}
	if h.EventID != "" {
		headers = append(headers, Header{Key: "event_id", Value: []byte(h.EventID)})
	}
	if h.Kind != "" {
		headers = append(headers, Header{Key: "kind", Value: []byte(h.Kind)})
	}
	if h.MessageType != "" {
		headers = append(headers, Header{Key: "message_type", Value: []byte(h.MessageType)})
	}
	if h.TraceParent != "" {
		headers = append(headers, Header{Key: "traceparent", Value: []byte(h.TraceParent)})
	}
	if h.TraceState != "" {
		headers = append(headers, Header{Key: "tracestate", Value: []byte(h.TraceState)})
	}

	return headers
}

// Header represents a Kafka message header
type Header struct {
	Key   string
	Value []byte
}

// ExtractHeaders extracts MessageHeaders from Kafka headers
func ExtractHeaders(headers []Header) MessageHeaders {
	var mh MessageHeaders
	for _, h := range headers {
		switch h.Key {
		case "corporation_id":
			mh.CorporationID = string(h.Value)
		case "source_platform":
			mh.SourcePlatform = string(h.Value)
		case "event_id":
			mh.EventID = string(h.Value)
		case "kind":
			mh.Kind = string(h.Value)
		case "message_type":
			mh.MessageType = string(h.Value)
		case "traceparent":
			mh.TraceParent = string(h.Value)
		case "tracestate":
			mh.TraceState = string(h.Value)
		}
	}
	return mh
}
