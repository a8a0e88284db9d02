package schema

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON serializes the fields as a map of child names to field strings.
// Only fields whose element type is native round-trip.
func (f Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}

	raw := make(map[string]string, len(f))
	for key, field := range f {
		if _, ok := field.Type.(*NativeType); !ok && field.Type != nil {
			return nil, fmt.Errorf("field %s: %s is not a native type", key, field.Type)
		}
		raw[key] = field.String()
	}

	return json.Marshal(raw)
}

// UnmarshalJSON deserializes the fields from a map of child names to field strings.
func (f *Fields) UnmarshalJSON(data []byte) error {
	if f == nil {
		return fmt.Errorf("schema: UnmarshalJSON on nil pointer")
	}

	if string(data) == "null" {
		*f = nil
		return nil
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := ParseFields(raw)
	if err != nil {
		return err
	}

	*f = parsed
	return nil
}
