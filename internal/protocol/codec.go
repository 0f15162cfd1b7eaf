package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stemsi/assessment-client/internal/validator"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// ValidationError reports a well-formed frame whose payload failed validation.
type ValidationError struct {
	Event  Event
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Event, strings.Join(parts, "; "))
}

// envelope is used to peek at the event type before full parsing.
type envelope struct {
	Type Event           `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message is a decoded inbound frame. Payload is a pointer to one of the
// event structs in schema.go, selected by Type.
type Message struct {
	Type    Event
	Payload interface{}
}

// Decode parses one inbound frame. On failure the returned Message still
// carries the event type when it could be read, so callers can attribute
// the error.
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	payload := newPayload(env.Type)
	if payload == nil {
		return Message{Type: env.Type}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	msg := Message{Type: env.Type, Payload: payload}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return Message{Type: env.Type}, fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, env.Type, err)
		}
	}

	if _, ok := payload.(*TestInfo); ok {
		return msg, nil
	}
	if fields := validator.Struct(payload); fields != nil {
		return Message{Type: env.Type}, &ValidationError{Event: env.Type, Fields: fields}
	}
	return msg, nil
}

func newPayload(t Event) interface{} {
	switch t {
	case EventConnectionEstablished:
		return &ConnectionEstablished{}
	case EventAssessmentStarted:
		return &AssessmentStarted{}
	case EventQuestion:
		return &QuestionDelivered{}
	case EventAnswerFeedback:
		return &AnswerFeedback{}
	case EventProgressUpdate:
		return &ProgressBody{}
	case EventAssessmentRecovered:
		return &AssessmentRecovered{}
	case EventAssessmentCompleted:
		return &AssessmentCompleted{}
	case EventError:
		return &ErrorEvent{}
	case EventPong:
		return &Pong{}
	case EventTestInfo:
		return &TestInfo{}
	default:
		return nil
	}
}

// NewRequest wraps an outbound payload in its envelope.
func NewRequest(action Action, data interface{}) Request {
	if data == nil {
		data = struct{}{}
	}
	return Request{Type: action, Data: data}
}
