package events

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

var (
	ErrInvalidTopic    = errors.New("invalid topic")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidReceiver = errors.New("receiver should be a pointer")
	ErrNoResponder     = errors.New("no responder for topic")
)

// Message patterns shared with the inventory, payment and notification services.
const (
	CheckUpdateInventoryTopic Topic = "check_update_inventory"
	ProcessPaymentTopic       Topic = "process_payment"
	PaymentCallbackTopic      Topic = "payment_callback"
	OrderConfirmedTopic       Topic = "order_confirmed"
)

// Topic is a message pattern. Subscriptions may use "*" for one segment and
// "#" for everything.
type Topic string

func NewTopic(topic string) (Topic, error) {
	if strings.TrimSpace(topic) == "" {
		return "", ErrInvalidTopic
	}
	return Topic(topic), nil
}

func (t Topic) String() string {
	return string(t)
}

// Matches reports whether t is covered by pattern.
func (t Topic) Matches(pattern Topic) bool {
	if pattern == "#" || pattern == "" {
		return true
	}
	return matchSegments(strings.Split(pattern.String(), "."), strings.Split(t.String(), "."))
}

func matchSegments(pattern, topic []string) bool {
	if len(pattern) != len(topic) {
		return false
	}
	for i := range pattern {
		if pattern[i] != "*" && pattern[i] != topic[i] {
			return false
		}
	}
	return true
}

// Metadata carries transport level attributes (correlation ids, receipt handles...)
type Metadata map[string]string

func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m Metadata) Set(key, value string) {
	m[key] = value
}

func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Event is a message travelling through a broker. Data is either a typed
// payload (outbound) or raw JSON (inbound).
type Event struct {
	ID            models.ID   `json:"id"`
	AggregateID   models.ID   `json:"aggregate_id"`
	Topic         Topic       `json:"topic"`
	Data          interface{} `json:"data"`
	Metadata      Metadata    `json:"metadata"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// Publisher emits fire-and-forget events
type Publisher interface {
	Publish(ctx context.Context, events ...*Event) error
}

// Requester sends a request and waits for the correlated reply
type Requester interface {
	Request(ctx context.Context, event *Event) (*Event, error)
}

// Subscriber subscribes to events
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
}

// EventHandler handles inbound events
type EventHandler interface {
	Handle(ctx context.Context, event *Event) error
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(ctx context.Context, event *Event) error

func (f EventHandlerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// RemoteError is returned by a Requester when the responder answered with an error.
type RemoteError struct {
	Topic   Topic
	Message string
}

func (e *RemoteError) Error() string {
	return "remote error on " + e.Topic.String() + ": " + e.Message
}

// NewEvent creates a new event for the given aggregate
func NewEvent(aggregateID models.ID, topic Topic, data interface{}) *Event {
	return &Event{
		ID:          models.GenerateUUID(),
		AggregateID: aggregateID,
		Topic:       topic,
		Data:        data,
		Metadata:    make(Metadata),
		Timestamp:   time.Now().UTC(),
	}
}

// WithMetadata adds metadata
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(Metadata)
	}
	e.Metadata.Set(key, value)
	return e
}

// MarshalPayload marshals the event payload
func (e *Event) MarshalPayload() (json.RawMessage, error) {
	switch b := e.Data.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	case nil:
		return nil, ErrInvalidPayload
	}
	return json.Marshal(e.Data)
}

// UnmarshalPayload unmarshals the event payload into v
func (e *Event) UnmarshalPayload(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return ErrInvalidReceiver
	}

	if e.Data != nil {
		payload := reflect.ValueOf(e.Data)
		if rv.Elem().Type() == payload.Type() {
			rv.Elem().Set(payload)
			return nil
		}
	}

	raw, err := e.MarshalPayload()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(ErrInvalidPayload, err.Error())
	}
	return nil
}

// Clone creates a shallow copy of the event with its own metadata
func (e *Event) Clone() *Event {
	clone := *e
	clone.Metadata = e.Metadata.Clone()
	return &clone
}
