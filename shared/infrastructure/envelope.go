package infrastructure

import (
	"encoding/json"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

const (
	// MessageIDKey holds the broker message id in event metadata.
	MessageIDKey = "message_id"
	// ReplyToKey and CorrelationIDKey are set on inbound requests.
	ReplyToKey       = "reply_to"
	CorrelationIDKey = "correlation_id"
)

// envelope is the JSON frame the Node collaborators use on RabbitMQ and SQS:
// {"pattern": ..., "data": ..., "id": ...}. id is only present on requests.
type envelope struct {
	Pattern json.RawMessage `json:"pattern"`
	Data    json.RawMessage `json:"data"`
	ID      string          `json:"id,omitempty"`
}

// replyEnvelope is the answer to a request.
type replyEnvelope struct {
	Err        json.RawMessage `json:"err"`
	Response   json.RawMessage `json:"response"`
	IsDisposed bool            `json:"isDisposed"`
}

// EncodeEnvelope frames an event. requestID is empty for fire-and-forget events.
func EncodeEnvelope(event *events.Event, requestID string) ([]byte, error) {
	payload, err := event.MarshalPayload()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	pattern, err := json.Marshal(event.Topic.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal pattern")
	}

	body, err := json.Marshal(envelope{Pattern: pattern, Data: payload, ID: requestID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal envelope")
	}
	return body, nil
}

// DecodeEnvelope turns a frame into an event whose Data is the raw payload.
// Object patterns ({"cmd": "x"}) are kept as their compact JSON text.
func DecodeEnvelope(body []byte) (*events.Event, string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", errors.Wrap(events.ErrInvalidPayload, err.Error())
	}
	if len(env.Pattern) == 0 {
		return nil, "", events.ErrInvalidTopic
	}

	var pattern string
	if err := json.Unmarshal(env.Pattern, &pattern); err != nil {
		pattern = string(env.Pattern)
	}
	topic, err := events.NewTopic(pattern)
	if err != nil {
		return nil, "", err
	}

	event := events.NewEvent(aggregateIDOf(env.Data), topic, env.Data)
	return event, env.ID, nil
}

// EncodeReply frames an answer to a request
func EncodeReply(response interface{}, replyErr error) ([]byte, error) {
	reply := replyEnvelope{IsDisposed: true, Err: json.RawMessage("null"), Response: json.RawMessage("null")}

	if replyErr != nil {
		msg, _ := json.Marshal(replyErr.Error())
		reply.Err = msg
	} else if response != nil {
		raw, err := json.Marshal(response)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal response")
		}
		reply.Response = raw
	}

	return json.Marshal(reply)
}

// DecodeReply returns the raw response, or a RemoteError when the responder failed.
func DecodeReply(topic events.Topic, body []byte) (json.RawMessage, error) {
	var reply replyEnvelope
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, errors.Wrap(events.ErrInvalidPayload, err.Error())
	}

	if len(reply.Err) > 0 && string(reply.Err) != "null" {
		var msg string
		if err := json.Unmarshal(reply.Err, &msg); err != nil {
			msg = string(reply.Err)
		}
		return nil, &events.RemoteError{Topic: topic, Message: msg}
	}

	return reply.Response, nil
}

// aggregateIDOf picks orderId out of a payload when there is one.
func aggregateIDOf(data json.RawMessage) models.ID {
	var probe struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return models.ID(probe.OrderID)
}
