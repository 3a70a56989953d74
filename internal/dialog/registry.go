// internal/dialog/registry.go
//
// Gridkit – Dialog subsystem: per-mode form registry.
//
// Context
//   A container often needs to validate or submit the form inside an open
//   dialog without holding a direct reference to it.  Forms register an
//   Adapter for their mode when they mount and release it when they unmount:
//
//	release := reg.RegisterForm(dialog.ModeEdit, adapter)
//	defer release()
//
//   Only one registration per mode is active.  A later registration replaces
//   the earlier one, and the earlier release func becomes a no-op so a late
//   unmount never evicts the newer form.
//
//   The Registry is an explicit object, scoped to whatever owns it (one per
//   container, session, or request).  It is not global state.
//
//------------------------------------------------------------------------------

package dialog

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/yanizio/gridkit/internal/metrics"
)

// Adapter holds the functions a mounted form exposes.  Every field is
// optional.
type Adapter struct {
	Validate           func(ctx context.Context) bool
	GetValues          func() Record
	GetValidatedValues func(ctx context.Context) (Record, error)
	IsDirty            func() bool
	Reset              func()
	GetErrors          func() Errors
}

// FormData is the result of ValidateAndGetFormData.
type FormData struct {
	IsValid bool
	Data    Record
	Errors  Errors
}

type registration struct {
	adapter Adapter
	token   uint64
}

// Registry maps modes to their currently bound Adapter.
type Registry struct {
	mu     sync.RWMutex
	forms  map[Mode]registration
	errs   map[Mode]Errors
	next   uint64
	flight singleflight.Group
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		forms: make(map[Mode]registration),
		errs:  make(map[Mode]Errors),
	}
}

// RegisterForm binds a for mode, replacing any earlier registration.  The
// returned release func unregisters a only while it is still the active
// registration; it is safe to call more than once.
func (r *Registry) RegisterForm(mode Mode, a Adapter) (release func()) {
	r.mu.Lock()
	r.next++
	token := r.next
	if _, replaced := r.forms[mode]; !replaced {
		metrics.RegisteredForms.Inc()
	}
	r.forms[mode] = registration{adapter: a, token: token}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if cur, ok := r.forms[mode]; ok && cur.token == token {
				r.dropLocked(mode)
			}
		})
	}
}

// UnregisterForm removes whatever is registered for mode.
func (r *Registry) UnregisterForm(mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.forms[mode]; ok {
		r.dropLocked(mode)
	}
}

func (r *Registry) dropLocked(mode Mode) {
	delete(r.forms, mode)
	delete(r.errs, mode)
	metrics.RegisteredForms.Dec()
}

// Registered reports whether mode has an active registration.
func (r *Registry) Registered(mode Mode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.forms[mode]
	return ok
}

func (r *Registry) adapter(mode Mode) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.forms[mode]
	return reg.adapter, ok
}

// ValidateAndGetFormData validates the form registered for mode and returns
// its data.  Concurrent calls for the same mode share one validation, which
// runs detached from any single caller's cancellation; a caller whose ctx
// ends stops waiting and gets the ctx error.
func (r *Registry) ValidateAndGetFormData(ctx context.Context, mode Mode) FormData {
	ch := r.flight.DoChan(string(mode), func() (any, error) {
		return r.validate(context.WithoutCancel(ctx), mode), nil
	})
	select {
	case res := <-ch:
		fd := res.Val.(FormData)
		return FormData{IsValid: fd.IsValid, Data: fd.Data.Clone(), Errors: fd.Errors.Clone()}
	case <-ctx.Done():
		return FormData{Errors: Normalize(ctx.Err())}
	}
}

func (r *Registry) validate(ctx context.Context, mode Mode) FormData {
	a, ok := r.adapter(mode)
	if !ok {
		return FormData{Errors: Errors{FormErrorKey: msgNotRegistered}}
	}

	var fd FormData
	switch {
	case a.GetValidatedValues != nil:
		data, err := a.GetValidatedValues(ctx)
		if err != nil {
			fd = FormData{Errors: Normalize(err)}
		} else {
			fd = FormData{IsValid: true, Data: data}
		}
	case a.Validate != nil && a.GetValues != nil:
		if a.Validate(ctx) {
			fd = FormData{IsValid: true, Data: a.GetValues()}
		} else {
			fd = FormData{Errors: r.collect(mode, a)}
		}
	case a.GetValues != nil:
		fd = FormData{IsValid: true, Data: a.GetValues()}
	default:
		fd = FormData{Errors: Errors{FormErrorKey: msgNoFormData}}
	}

	if fd.IsValid {
		r.SetFormErrors(nil, mode)
	} else {
		r.SetFormErrors(fd.Errors, mode)
	}
	return fd
}

// collect asks the adapter for its errors, falling back to the stored ones.
func (r *Registry) collect(mode Mode, a Adapter) Errors {
	if a.GetErrors != nil {
		if errs := a.GetErrors(); len(errs) > 0 {
			return Normalize(errs)
		}
	}
	r.mu.RLock()
	stored := r.errs[mode]
	r.mu.RUnlock()
	if len(stored) > 0 {
		return stored.Clone()
	}
	return Errors{FormErrorKey: msgInvalidNoErrors}
}

// GetFormErrors returns the errors for mode: the adapter's own when it
// reports any, otherwise the last errors stored with SetFormErrors.
func (r *Registry) GetFormErrors(mode Mode) Errors {
	if a, ok := r.adapter(mode); ok && a.GetErrors != nil {
		if errs := a.GetErrors(); len(errs) > 0 {
			return errs.Clone()
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errs[mode].Clone()
}

// SetFormErrors stores errs for mode, typically server-side errors that the
// form should display.  Nil or empty errs clears them.
func (r *Registry) SetFormErrors(errs Errors, mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(errs) == 0 {
		delete(r.errs, mode)
		return
	}
	r.errs[mode] = errs.Clone()
}

// IsDirty reports whether the form for mode has unsaved changes.
func (r *Registry) IsDirty(mode Mode) bool {
	a, ok := r.adapter(mode)
	return ok && a.IsDirty != nil && a.IsDirty()
}

// Reset resets the form for mode and clears its stored errors.
func (r *Registry) Reset(mode Mode) {
	if a, ok := r.adapter(mode); ok && a.Reset != nil {
		a.Reset()
	}
	r.SetFormErrors(nil, mode)
}

// Handle exposes the registration for mode as a FormHandle, so a Machine can
// submit whatever form is currently mounted.
func (r *Registry) Handle(mode Mode) FormHandle {
	return registryHandle{reg: r, mode: mode}
}

type registryHandle struct {
	reg  *Registry
	mode Mode
}

// GetValidatedValues implements ValidatedValuesGetter.
func (h registryHandle) GetValidatedValues(ctx context.Context) (Record, error) {
	if !h.reg.Registered(h.mode) {
		return nil, nil // no form mounted; the resolver falls back to the record
	}
	fd := h.reg.ValidateAndGetFormData(ctx, h.mode)
	if !fd.IsValid {
		return nil, &InvalidFormError{Source: fd.Errors}
	}
	return fd.Data, nil
}
