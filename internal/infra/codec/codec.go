// Package codec implements the message <-> wire-byte serializer.
// Swapping this out (a different wire encoding) never touches the engine —
// it depends only on domain.Codec.
package codec

import "encoding/json"

// JSON implements domain.Codec over encoding/json. It is the default wire
// encoding; the engine never imports this package directly, only
// domain.Codec.
type JSON struct{}

// New creates a JSON codec.
func New() JSON { return JSON{} }

// Encode marshals v to JSON bytes.
func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals data into v.
func (JSON) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
