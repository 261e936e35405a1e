// Package mlstring models multilingual strings: one value per language
// code, stored as a JSON object column.
package mlstring

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// String maps language codes ("en", "de") to text.
type String map[string]string

// Resolve returns the text for lang, falling back to the first available
// language in fallbacks, then to any value.  The second result names the
// language actually used.
func (s String) Resolve(lang string, fallbacks ...string) (string, string) {
	if v, ok := s[lang]; ok {
		return v, lang
	}
	for _, fb := range fallbacks {
		if v, ok := s[fb]; ok {
			return v, fb
		}
	}
	for l, v := range s {
		return v, l
	}
	return "", ""
}

// Merge returns a copy of s with every entry of other applied on top.
func (s String) Merge(other String) String {
	out := make(String, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer.
func (s String) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON text or bytes.
func (s *String) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = String{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("mlstring: cannot scan %T", src)
	}
	m := map[string]string{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("mlstring: %w", err)
	}
	*s = m
	return nil
}

// FromAny converts a parsed form value ({lang: text}) into a String.  It
// returns nil when v has a different shape.
func FromAny(v any) String {
	switch m := v.(type) {
	case String:
		return m
	case map[string]string:
		return String(m)
	default:
		return nil
	}
}
