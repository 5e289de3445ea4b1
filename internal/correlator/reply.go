package correlator

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Reply is the answer to one command. For collected replies Body is the
// union of the top-level keys of every part.
type Reply struct {
	Device string
	Topics []string
	Body   map[string]json.RawMessage
}

// NewReply builds a reply from a decoded JSON object.
func NewReply(device, suffix string, body map[string]json.RawMessage) Reply {
	return Reply{Device: device, Topics: []string{suffix}, Body: body}
}

// Has reports whether the reply carries key.
func (r Reply) Has(key string) bool {
	_, ok := r.Body[key]
	return ok
}

// Decode unmarshals the value under key into v.
func (r Reply) Decode(key string, v any) error {
	raw, ok := r.Body[key]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrProtocol, key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decoding %q: %w", ErrProtocol, key, err)
	}
	return nil
}

// Decoded returns the reply body as the decoded object shape used by the
// state synchronizer.
func (r Reply) Decoded() map[string]json.RawMessage {
	return maps.Clone(r.Body)
}

// MarshalJSON renders the merged body.
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Body)
}
