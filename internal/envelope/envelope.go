// Package envelope defines the typed inter-agent message format shared by
// the bus, the agent runtime, and every worker.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MsgType discriminates the payload carried by an Envelope.
type MsgType string

const (
	TaskAssign         MsgType = "task_assign"
	StatusUpdate       MsgType = "status_update"
	DataSubmit         MsgType = "data_submit"
	ValidationRequest  MsgType = "validation_request"
	ValidationResponse MsgType = "validation_response"
	LogBroadcast       MsgType = "log_broadcast"
)

func (t MsgType) valid() bool {
	switch t {
	case TaskAssign, StatusUpdate, DataSubmit, ValidationRequest, ValidationResponse, LogBroadcast:
		return true
	}
	return false
}

// ValidationError reports a single field-level constraint violation on an
// Envelope or one of its payload variants.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("envelope: %s: %s", e.Field, e.Message)
}

// Envelope is the uniform wire record for all inter-agent traffic. Exactly
// one of ReceiverID or Topic is set, never both, never neither.
type Envelope struct {
	SenderID      string          `json:"sender_id"`
	ReceiverID    string          `json:"receiver_id,omitempty"`
	Topic         string          `json:"topic,omitempty"`
	MsgType       MsgType         `json:"msg_type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     string          `json:"timestamp,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// Destination returns whichever of ReceiverID/Topic is set, and which kind
// it is. Callers that already validated the envelope can rely on exactly
// one being non-empty.
func (e *Envelope) Destination() (value string, isTopic bool) {
	if e.Topic != "" {
		return e.Topic, true
	}
	return e.ReceiverID, false
}

// Build constructs a validated Envelope. dest is either a receiver agent id
// (direct) or a topic name (broadcast); which one is determined by
// asTopic. Fails with a *ValidationError if sender is empty, dest is empty,
// msgType is not one of the closed set, or payload does not marshal. A
// ValidationRequestPayload with an empty ValidationType is given
// DefaultValidationType.
func Build(sender, dest string, asTopic bool, msgType MsgType, payload interface{}) (*Envelope, error) {
	if sender == "" {
		return nil, &ValidationError{Field: "sender_id", Message: "must not be empty"}
	}
	if dest == "" {
		return nil, &ValidationError{Field: "destination", Message: "must not be empty"}
	}
	if !msgType.valid() {
		return nil, &ValidationError{Field: "msg_type", Message: fmt.Sprintf("unknown type %q", msgType)}
	}

	if p, ok := payload.(ValidationRequestPayload); ok && p.ValidationType == "" {
		p.ValidationType = DefaultValidationType
		payload = p
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Field: "payload", Message: err.Error()}
	}

	if err := validatePayload(msgType, raw); err != nil {
		return nil, err
	}

	env := &Envelope{
		SenderID:      sender,
		MsgType:       msgType,
		Payload:       raw,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		CorrelationID: uuid.NewString(),
	}
	if asTopic {
		env.Topic = dest
	} else {
		env.ReceiverID = dest
	}
	return env, nil
}

// Validate re-checks an Envelope's structural invariants, e.g. after
// decoding from the wire.
func (e *Envelope) Validate() error {
	if e.SenderID == "" {
		return &ValidationError{Field: "sender_id", Message: "must not be empty"}
	}
	hasReceiver := e.ReceiverID != ""
	hasTopic := e.Topic != ""
	if hasReceiver == hasTopic {
		return &ValidationError{Field: "destination", Message: "exactly one of receiver_id or topic must be set"}
	}
	if !e.MsgType.valid() {
		return &ValidationError{Field: "msg_type", Message: fmt.Sprintf("unknown type %q", e.MsgType)}
	}
	if len(e.Payload) == 0 {
		return &ValidationError{Field: "payload", Message: "must not be empty"}
	}
	return validatePayload(e.MsgType, e.Payload)
}

// UnmarshalPayload decodes the envelope's payload into v, which should be
// one of the typed payload variants matching e.MsgType.
func (e *Envelope) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Encode produces the canonical external text form: a single JSON object.
func Encode(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses the canonical external text form, failing with a
// *ValidationError on unknown msg_type, missing required fields, or a
// payload that does not match the declared variant.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &ValidationError{Field: "envelope", Message: "malformed JSON: " + err.Error()}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
