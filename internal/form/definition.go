// internal/form/definition.go
//
// Gridkit – Forms subsystem: YAML definition loader.
//
// Context
//   Each grid dialog form is declared in a YAML file: its identifier, title,
//   the dialog modes it serves, and its fields.  At start-up we parse every
//   “*.yaml” under “components/<comp>/forms/” into a Set, which the HTTP
//   surface consults to build form handles and render dialog markup.
//
// Workflow
//   •  Structs mirror the YAML schema: FormDef → FieldDef.
//   •  LoadFormDef parses a single YAML file and validates structural rules.
//   •  Set.LoadDirs walks one or more base directories, discovers YAMLs, and
//      adds them, respecting override precedence (earlier dirs win).
//   •  Set.Get offers read-only access to a parsed form by ID.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/gridkit/internal/dialog"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// FormDef represents one form definition loaded from YAML.
//
// The form is uniquely identified by ID, namespaced by component, e.g.
// “records/record”.  Modes lists the dialog modes the form serves; an empty
// list means create, edit, and view.
type FormDef struct {
	ID     string     `yaml:"id"`
	Title  string     `yaml:"title"`
	Modes  []string   `yaml:"modes"`
	Fields []FieldDef `yaml:"fields"`
}

// FieldDef describes a single input control on the form.  Validation metadata
// lives inline so the server enforces the same rules the markup hints at.
type FieldDef struct {
	Name        string   `yaml:"name"`        // Submission key.  Required.
	Label       string   `yaml:"label"`       // Human-readable label.  Required.
	Type        string   `yaml:"type"`        // text, textarea, email, number, date, select, radio, checkbox
	Placeholder string   `yaml:"placeholder"` // Optional placeholder text.
	Required    bool     `yaml:"required"`
	MinLength   int      `yaml:"minlength"` // ≥ 0, 0 means unset.
	MaxLength   int      `yaml:"maxlength"` // ≥ 0, 0 means unset.
	Pattern     string   `yaml:"pattern"`   // Regex pattern string.
	Options     []string `yaml:"options"`   // For select/radio.
	ErrorMsg    string   `yaml:"error"`     // Custom error message, optional.
	ReadOnly    bool     `yaml:"readonly"`  // Rendered but never submitted on edit.

	re *regexp.Regexp
}

var defaultModes = []string{string(dialog.ModeCreate), string(dialog.ModeEdit), string(dialog.ModeView)}

// Serves reports whether the form is offered for mode.
func (fd *FormDef) Serves(mode dialog.Mode) bool {
	modes := fd.Modes
	if len(modes) == 0 {
		modes = defaultModes
	}
	for _, m := range modes {
		if m == string(mode) {
			return true
		}
	}
	return false
}

// Field returns the field named name.
func (fd *FormDef) Field(name string) (*FieldDef, bool) {
	for i := range fd.Fields {
		if fd.Fields[i].Name == name {
			return &fd.Fields[i], true
		}
	}
	return nil, false
}

// -----------------------------------------------------------------------------
// Set
// -----------------------------------------------------------------------------

// Set maps form IDs to definitions.  Safe for concurrent use.
type Set struct {
	mu    sync.RWMutex
	forms map[string]*FormDef
}

// NewSet returns an empty Set.
func NewSet() *Set { return &Set{forms: make(map[string]*FormDef)} }

// Get returns a parsed FormDef by ID.  The boolean is false when unknown.
func (s *Set) Get(id string) (*FormDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fd, ok := s.forms[id]
	return fd, ok
}

// Add inserts fd unless a definition with the same ID is already present.
// It reports whether fd was stored.
func (s *Set) Add(fd *FormDef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.forms[fd.ID]; dup {
		return false
	}
	s.forms[fd.ID] = fd
	return true
}

// Len reports how many forms are loaded.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.forms)
}

// LoadDirs walks every base directory and loads “*.yaml” under
// “components/*/forms/”.  Dirs are ordered by precedence, overrides first.
//
// Example:
//
//	err := set.LoadDirs([]string{
//	    "/var/gridkit/site",  // overrides
//	    "/var/gridkit",       // defaults
//	})
func (s *Set) LoadDirs(baseDirs []string) error {
	if len(baseDirs) == 0 {
		return errors.New("form: no base directories provided")
	}

	for _, base := range baseDirs {
		root := filepath.Join(base, "components")
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
				return nil
			}
			if filepath.Base(filepath.Dir(path)) != "forms" {
				return nil
			}

			fd, err := LoadFormDef(path)
			if err != nil {
				return err // fail fast so issues surface loudly.
			}
			if !s.Add(fd) {
				zap.S().Debugw("form overridden", "form", fd.ID, "file", path)
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Loader
// -----------------------------------------------------------------------------

// LoadFormDef parses one YAML file, validates it, and returns the FormDef.
func LoadFormDef(path string) (*FormDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	return ParseFormDef(raw, path)
}

// ParseFormDef parses YAML bytes.  src names the origin in error messages.
func ParseFormDef(raw []byte, src string) (*FormDef, error) {
	var fd FormDef
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", src, err)
	}
	if err := validateFormDef(&fd, src); err != nil {
		return nil, err
	}
	return &fd, nil
}

// validateFormDef enforces structural rules that YAML tags cannot express.
func validateFormDef(fd *FormDef, src string) error {
	if fd.ID == "" {
		return fmt.Errorf("form definition %s: missing required 'id'", src)
	}
	if len(fd.Fields) == 0 {
		return fmt.Errorf("form definition %s: must have 'fields'", src)
	}

	seen := make(map[string]struct{}, len(fd.Fields))
	for i := range fd.Fields {
		f := &fd.Fields[i]
		if err := validateField(f, src); err != nil {
			return err
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", src, f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	for _, m := range fd.Modes {
		switch dialog.Mode(m) {
		case dialog.ModeCreate, dialog.ModeEdit, dialog.ModeView, dialog.ModeDelete:
		default:
			zap.S().Warnw("form declares custom mode", "form", fd.ID, "mode", m)
		}
	}
	return nil
}

// validateField confirms that essential attributes are present and sane.
func validateField(f *FieldDef, src string) error {
	if f.Name == "" {
		return fmt.Errorf("form %s: field missing 'name'", src)
	}
	if f.Name == dialog.FormErrorKey {
		return fmt.Errorf("form %s: field name '%s' is reserved", src, f.Name)
	}
	if f.Label == "" {
		return fmt.Errorf("form %s: field '%s' missing 'label'", src, f.Name)
	}
	if !knownTypes[f.Type] {
		return fmt.Errorf("form %s: field '%s' has unsupported type %q", src, f.Name, f.Type)
	}

	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("form %s: field '%s' invalid regex pattern: %v", src, f.Name, err)
		}
		f.re = re
	}

	if f.MinLength < 0 || f.MaxLength < 0 {
		return fmt.Errorf("form %s: field '%s' minlength/maxlength cannot be negative", src, f.Name)
	}
	if f.MaxLength > 0 && f.MinLength > f.MaxLength {
		return fmt.Errorf("form %s: field '%s' minlength greater than maxlength", src, f.Name)
	}
	if (f.Type == "select" || f.Type == "radio") && len(f.Options) == 0 {
		return fmt.Errorf("form %s: field '%s' needs 'options'", src, f.Name)
	}
	return nil
}

var knownTypes = map[string]bool{
	"text": true, "textarea": true, "email": true, "password": true,
	"number": true, "date": true, "select": true, "radio": true, "checkbox": true,
}
