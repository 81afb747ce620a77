// Package codec defines the serialization contract for workflow contexts.
// The engine treats the context as opaque; a codec turns it into the bytes
// a store persists and back. Implementations must round-trip any
// struct the caller registers as a context type.
package codec

// Codec encodes and decodes workflow context values.
type Codec interface {
	// Marshal serializes a context value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into a context value (a pointer).
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// Codec name constants.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Get returns a codec by name. Defaults to JSON.
func Get(name string) Codec {
	switch name {
	case NameMsgpack:
		return &Msgpack{}
	case NameJSON, "":
		return &JSON{}
	default:
		return &JSON{}
	}
}
