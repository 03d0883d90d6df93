package ai

import (
	"encoding/json"
	"time"
)

// newEnvelope stamps the fixed envelope fields. Provider and timestamp are
// filled in even before the outcome is known.
func newEnvelope(req *Request, provider Provider) *Envelope {
	return &Envelope{
		ID:        req.ID,
		Provider:  provider,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// errorEnvelope builds an error-typed envelope. The provider field is kept when
// the failure is attributable to a specific backend.
func errorEnvelope(req *Request, provider Provider, message string) *Envelope {
	env := newEnvelope(req, provider)
	env.Type = EnvelopeTypeError
	env.Error = message
	return env
}

// MarshalJSON emits the payload under the module-specific field name
// (findings, code, insights, ...) the way each dashboard screen expects it.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope // avoid recursion
	raw, err := json.Marshal((*alias)(e))
	if err != nil {
		return nil, err
	}

	if e.IsError() || e.Payload == "" {
		return raw, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	field := Module(e.Type).PayloadField()
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	m[field] = payload
	return json.Marshal(m)
}

// UnmarshalJSON restores the payload from whichever module field is present.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	if e.IsError() {
		return nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if raw, ok := m[Module(e.Type).PayloadField()]; ok {
		return json.Unmarshal(raw, &e.Payload)
	}
	return nil
}
