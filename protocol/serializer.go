package protocol

import "encoding/json"

// Serializer defines the contract for serializing and deserializing notifications.
// Venue adapters may plug in their own wire format (JSON, Protobuf, SBE, etc.).
type Serializer interface {
	// Marshal serializes a Go struct (e.g. Notification) into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a Go struct.
	// v must be a pointer to the target struct.
	Unmarshal(data []byte, v any) error
}

// DefaultJSONSerializer encodes with encoding/json.
type DefaultJSONSerializer struct{}

func (DefaultJSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (DefaultJSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
