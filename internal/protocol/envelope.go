package protocol

import (
	"encoding/json"
	"fmt"

	werrors "github.com/dshills/deuce/internal/errors"
)

// Envelope is one message on the channel.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload under kind. A nil payload produces an
// envelope with no data.
func NewEnvelope(kind Kind, payload any) (Envelope, error) {
	env := Envelope{Kind: kind}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return werrors.Newf(werrors.KindProtocol, e.Kind.String(), "message has no data")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return werrors.Wrap(werrors.KindProtocol, e.Kind.String(), err)
	}
	return nil
}

// CorrelationID extracts the correlation id of a query or response. The
// boolean is false when the envelope carries none.
func (e Envelope) CorrelationID() (int64, bool) {
	var probe struct {
		CorrelationID *int64 `json:"correlationId"`
	}
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &probe) != nil || probe.CorrelationID == nil {
		return 0, false
	}
	return *probe.CorrelationID, true
}
