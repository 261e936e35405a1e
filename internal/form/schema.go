// internal/form/schema.go
//
// Field schema for submitted forms.
//
// Context
//   A Schema is an ordered list of Fields.  The parser walks it field by
//   field, so order decides the order of flashed messages.  Schemas are
//   usually declared in YAML (see definition.go) but may be built in code.
//
//------------------------------------------------------------------------------

package form

// FieldType selects how a posted value is validated and transformed.
type FieldType string

const (
	Text     FieldType = "text"     // trimmed, HTML-escaped, stored per language
	Markdown FieldType = "markdown" // escaped source plus sanitised HTML
	Number   FieldType = "number"   // float64
	URL      FieldType = "url"      // normalised, percent-encoded
	Boolean  FieldType = "boolean"  // presence
	Raw      FieldType = "raw"      // passed through unchanged
)

var knownTypes = map[FieldType]bool{
	Text: true, Markdown: true, Number: true, URL: true, Boolean: true, Raw: true,
}

// Field describes one posted form key.
type Field struct {
	Name      string    `yaml:"name"`
	Key       string    `yaml:"key"`       // output key, defaults to Name
	Type      FieldType `yaml:"type"`
	Required  bool      `yaml:"required"`
	SkipValue bool      `yaml:"skip_value"` // validated, never emitted
	Flat      bool      `yaml:"flat"`       // markdown only
	HTMLKey   string    `yaml:"html_key"`   // markdown+flat only, defaults to "html"
	Label     string    `yaml:"label"`      // message key for templates
	MinLength int       `yaml:"minlength"`  // characters, 0 means unset
	MaxLength int       `yaml:"maxlength"`  // characters, 0 means unset
}

// OutKey is the key the value is stored under.
func (f Field) OutKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

// OutHTMLKey is the key rendered markdown is stored under when Flat.
func (f Field) OutHTMLKey() string {
	if f.HTMLKey != "" {
		return f.HTMLKey
	}
	return "html"
}

// lengthKey returns the message key for a value of n characters that breaks
// the field's length rules, or "" when it fits.
func (f Field) lengthKey(n int) string {
	switch {
	case f.MinLength > 0 && n < f.MinLength:
		return "too short"
	case f.MaxLength > 0 && n > f.MaxLength:
		return "too long"
	}
	return ""
}

// Schema is an ordered field list.
type Schema []Field

// Clone returns a copy that can be extended without touching s.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s), len(s)+3)
	copy(out, s)
	return out
}

// Names returns the posted names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field by posted name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
