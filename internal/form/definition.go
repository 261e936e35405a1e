// internal/form/definition.go
//
// YAML form definitions.
//
// Context
//   Every form the site accepts is declared in a YAML file: its id, a title
//   message key, and the ordered field schema.  The defaults ship embedded
//   under defs/ so the binary is self-contained; LoadDefinitions accepts any
//   fs.FS so tests and deployments can supply their own.
//
// Workflow
//   •  LoadDefinitions parses every "*.yaml" in the directory, validates it,
//      and returns an immutable registry.
//   •  Get / MustGet hand out definitions by id.  Callers clone the schema
//      before extending it (the parser does this itself).
//
// Notes
//   Structural rules are enforced at load so a bad definition stops the
//   process at boot instead of surfacing as a confusing request error.
//
//------------------------------------------------------------------------------

package form

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defs/*.yaml
var defaultDefs embed.FS

// Definition is one declared form.
type Definition struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title"`
	Fields Schema `yaml:"fields"`
}

// Definitions is a read-only registry keyed by form id.
type Definitions struct {
	byID map[string]*Definition
}

// DefaultDefinitions loads the embedded definitions.
func DefaultDefinitions() (*Definitions, error) {
	return LoadDefinitions(defaultDefs, "defs")
}

// LoadDefinitions parses every YAML file in dir.
func LoadDefinitions(fsys fs.FS, dir string) (*Definitions, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read form dir %s: %w", dir, err)
	}

	defs := &Definitions{byID: make(map[string]*Definition)}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		p := path.Join(dir, e.Name())
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read form file %s: %w", p, err)
		}
		d, err := ParseDefinition(raw, p)
		if err != nil {
			return nil, err
		}
		if _, dup := defs.byID[d.ID]; dup {
			return nil, fmt.Errorf("form %s: duplicate id %q", p, d.ID)
		}
		defs.byID[d.ID] = d
	}
	return defs, nil
}

// ParseDefinition decodes and validates one YAML document.  src names the
// document in error messages.
func ParseDefinition(raw []byte, src string) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", src, err)
	}
	if err := validateDefinition(&d, src); err != nil {
		return nil, err
	}
	return &d, nil
}

// Get returns the definition for id.
func (d *Definitions) Get(id string) (*Definition, bool) {
	def, ok := d.byID[id]
	return def, ok
}

// MustGet panics when id is unknown.  Use it while wiring components.
func (d *Definitions) MustGet(id string) *Definition {
	def, ok := d.byID[id]
	if !ok {
		panic(fmt.Sprintf("form: unknown definition %q", id))
	}
	return def
}

// IDs lists the registered ids, sorted.
func (d *Definitions) IDs() []string {
	out := make([]string, 0, len(d.byID))
	for id := range d.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

/*──────────────────────────── validation ──────────────────────────────────*/

// reserved names are appended by the parser.
var reserved = map[string]bool{csrfField: true, captchaIDField: true, captchaAnswerField: true}

func validateDefinition(d *Definition, src string) error {
	if d.ID == "" {
		return fmt.Errorf("form definition %s: missing required 'id'", src)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("form definition %s: must have 'fields'", src)
	}

	names := make(map[string]struct{})
	keys := make(map[string]struct{})
	for i := range d.Fields {
		f := &d.Fields[i]
		if err := validateField(f, src); err != nil {
			return err
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", src, f.Name)
		}
		names[f.Name] = struct{}{}

		if f.SkipValue {
			continue
		}
		outs := []string{f.OutKey()}
		if f.Flat {
			outs = append(outs, f.OutHTMLKey())
		}
		for _, k := range outs {
			if _, dup := keys[k]; dup {
				return fmt.Errorf("form %s: field '%s' reuses output key '%s'", src, f.Name, k)
			}
			keys[k] = struct{}{}
		}
	}
	return nil
}

func validateField(f *Field, src string) error {
	switch {
	case f.Name == "":
		return fmt.Errorf("form %s: field missing 'name'", src)
	case reserved[f.Name]:
		return fmt.Errorf("form %s: field name '%s' is reserved", src, f.Name)
	case f.Type == "":
		return fmt.Errorf("form %s: field '%s' missing 'type'", src, f.Name)
	case !knownTypes[f.Type]:
		return fmt.Errorf("form %s: field '%s' has unknown type '%s'", src, f.Name, f.Type)
	case f.Flat && f.Type != Markdown:
		return fmt.Errorf("form %s: field '%s' is flat but not markdown", src, f.Name)
	case f.HTMLKey != "" && !f.Flat:
		return fmt.Errorf("form %s: field '%s' sets html_key without flat", src, f.Name)
	case f.MinLength < 0 || f.MaxLength < 0:
		return fmt.Errorf("form %s: field '%s' has a negative length rule", src, f.Name)
	case f.MaxLength > 0 && f.MinLength > f.MaxLength:
		return fmt.Errorf("form %s: field '%s' minlength exceeds maxlength", src, f.Name)
	case (f.MinLength > 0 || f.MaxLength > 0) && (f.Type == Boolean || f.Type == Number):
		return fmt.Errorf("form %s: field '%s' of type %s cannot carry length rules", src, f.Name, f.Type)
	}
	return nil
}
