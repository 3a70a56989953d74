// internal/form/handle.go
//
// Gridkit – Forms subsystem: form handles over posted input.
//
// Context
//   The dialog machine knows nothing about HTTP.  It probes whatever handle
//   it is given for capabilities.  Handle adapts a FormDef plus url.Values to
//   the validate-then-read shape; Posted adapts bare url.Values to the raw
//   element collection for dialogs that have no definition.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"github.com/yanizio/gridkit/internal/dialog"
)

// Handle is a validated view of one posted form.  Safe for concurrent use.
type Handle struct {
	def    *FormDef
	mode   dialog.Mode
	posted url.Values

	mu     sync.Mutex
	values dialog.Record
	errs   FieldErrors
	done   bool
}

// NewHandle binds posted input to def for mode.  Validation runs lazily on
// the first Validate call.
func NewHandle(def *FormDef, mode dialog.Mode, posted url.Values) *Handle {
	return &Handle{def: def, mode: mode, posted: posted}
}

// Validate runs the field rules once and caches the outcome.
func (h *Handle) Validate(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.run()
	return len(h.errs) == 0, nil
}

// GetValues returns the sanitized values.  Fields that failed validation are
// absent.
func (h *Handle) GetValues() dialog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.run()
	return h.values.Clone()
}

// FormErrors returns the field error tree, or nil when the input is valid.
func (h *Handle) FormErrors() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.run()
	if len(h.errs) == 0 {
		return nil
	}
	out := make(map[string]any, len(h.errs))
	for k, v := range h.errs {
		out[k] = v
	}
	return out
}

// Input returns the raw input the handle was built from.
func (h *Handle) Input() url.Values { return h.posted }

func (h *Handle) run() {
	if h.done {
		return
	}
	h.values, h.errs = Validate(h.def, h.mode, h.posted)
	h.done = true
}

// -----------------------------------------------------------------------------
// Raw elements
// -----------------------------------------------------------------------------

// Posted exposes url.Values as a raw element collection.  Multi-value keys
// contribute their first value.
type Posted url.Values

// Elements wraps v as an element provider.
func Elements(v url.Values) Posted { return Posted(v) }

// Elements lists the inputs sorted by name, sanitized.
func (p Posted) Elements() []dialog.Element {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]dialog.Element, 0, len(names))
	for _, name := range names {
		var v string
		if vals := p[name]; len(vals) > 0 {
			v = Sanitize(vals[0])
		}
		out = append(out, dialog.Element{Name: name, Value: v})
	}
	return out
}
