package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
)

// Metadata is the free-form EXIF and derived-field map stored on a photo.
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}", nil
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	if len(bytes) == 0 {
		*m = Metadata{}
		return nil
	}
	out := Metadata{}
	if err := json.Unmarshal(bytes, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Merge copies every key of other into m, overwriting existing keys.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Has reports whether key is present with a non-nil value.
func (m Metadata) Has(key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

// String returns the value for key when it is a non-empty string.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Float returns the numeric value for key. Values read back from JSON are
// float64, values set in-process may be any Go number type.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint16:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Int returns the numeric value for key truncated towards zero.
func (m Metadata) Int(key string) (int, bool) {
	f, ok := m.Float(key)
	if !ok {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

// Bool returns the boolean value for key.
func (m Metadata) Bool(key string) bool {
	v, _ := m[key].(bool)
	return v
}
