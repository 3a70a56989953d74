// internal/dialog/handle.go
//
// Gridkit – Dialog subsystem: form handle capabilities.
//
// Context
//   A FormHandle is whatever the mounted form exposes.  No single shape is
//   required; the resolver probes the interfaces below with type assertions
//   and picks the first strategy whose capability is present.  A handle may
//   implement any subset, including none.
//
//------------------------------------------------------------------------------

package dialog

import "context"

// FormHandle is an opaque, non-owning reference to a mounted form.
type FormHandle any

// ValidatedValuesGetter validates and extracts in one call.  A non-nil error
// is a ValidationErrorSource and is handed to Normalize unchanged.
type ValidatedValuesGetter interface {
	GetValidatedValues(ctx context.Context) (Record, error)
}

// Validator reports whether the current input is valid.
type Validator interface {
	Validate(ctx context.Context) (bool, error)
}

// ValuesGetter returns the current input without validating it.
type ValuesGetter interface {
	GetValues() Record
}

// ErrorsReporter exposes the form's own error state (formState.errors in
// hook-style libraries).  The value may have any shape Normalize accepts.
type ErrorsReporter interface {
	FormErrors() any
}

// SubmitHandler models the dual-callback submit pattern.  The returned func
// triggers validation and eventually calls exactly one of the callbacks,
// possibly from another goroutine.
type SubmitHandler interface {
	HandleSubmit(onValid func(Record), onInvalid func(any)) func(ctx context.Context)
}

// Element is one named input of a raw element collection.
type Element struct {
	Name  string
	Value string
}

// ElementsProvider exposes raw input elements.
type ElementsProvider interface {
	Elements() []Element
}

// PropsProvider exposes component props; values are read from "values".
type PropsProvider interface {
	Props() map[string]any
}

// StateProvider exposes component state directly.
type StateProvider interface {
	State() map[string]any
}

// InternalStateProvider exposes internal component state.
type InternalStateProvider interface {
	InternalState() map[string]any
}
