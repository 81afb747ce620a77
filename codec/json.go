package codec

import "encoding/json"

// JSON encodes/decodes contexts as JSON. This is the default codec:
// human-readable in the store and stable across process versions.
type JSON struct{}

func (c *JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSON) Name() string { return NameJSON }
