// internal/dialog/resolver_test.go
//
// Unit-tests for Resolve strategy selection.
//
// Each fake below implements one capability set.  The multi-capability
// fakes check that the highest-ranked strategy wins and lower ones are never
// called.

package dialog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type validatedForm struct {
	data  Record
	err   error
	calls int
}

func (f *validatedForm) GetValidatedValues(context.Context) (Record, error) {
	f.calls++
	return f.data, f.err
}

// GetValues must never be reached when GetValidatedValues exists.
func (f *validatedForm) GetValues() Record { panic("GetValues called") }

type hookForm struct {
	valid  bool
	values Record
	errs   any
}

func (f *hookForm) Validate(context.Context) (bool, error) { return f.valid, nil }
func (f *hookForm) GetValues() Record                      { return f.values }
func (f *hookForm) FormErrors() any                        { return f.errs }

type submitForm struct {
	valid   Record
	invalid any
	async   bool
}

func (f *submitForm) HandleSubmit(onValid func(Record), onInvalid func(any)) func(context.Context) {
	return func(context.Context) {
		fire := func() {
			if f.valid != nil {
				onValid(f.valid)
				onInvalid("late callback ignored")
				return
			}
			onInvalid(f.invalid)
		}
		if f.async {
			go func() {
				time.Sleep(5 * time.Millisecond)
				fire()
			}()
			return
		}
		fire()
	}
}

type valuesForm struct{ values Record }

func (f valuesForm) GetValues() Record { return f.values }

type elementsForm struct{ els []Element }

func (f elementsForm) Elements() []Element { return f.els }

type propsForm struct{ props map[string]any }

func (f propsForm) Props() map[string]any { return f.props }

type stateForm struct{ state map[string]any }

func (f stateForm) State() map[string]any { return f.state }

type internalForm struct{ state map[string]any }

func (f internalForm) InternalState() map[string]any { return f.state }

func TestResolve_ValidatedValuesWins(t *testing.T) {
	f := &validatedForm{data: Record{"name": "Ada"}}
	got, strat, err := Resolve(context.Background(), f, ModeCreate, nil)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if strat != StrategyValidatedValues || f.calls != 1 {
		t.Fatalf("strategy = %v, calls = %d", strat, f.calls)
	}
	if diff := cmp.Diff(Record{"name": "Ada"}, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_ValidatedValuesErrorForwarded(t *testing.T) {
	src := &IssuesError{Issues: []Issue{{Path: []any{"email"}, Message: "Invalid email"}}}
	_, _, err := Resolve(context.Background(), &validatedForm{err: src}, ModeCreate, nil)
	var got *IssuesError
	if !errors.As(err, &got) || got != src {
		t.Fatalf("error not forwarded unmodified: %#v", err)
	}
}

func TestResolve_ValidateThenValues(t *testing.T) {
	ok := &hookForm{valid: true, values: Record{"title": "Hello"}}
	got, strat, err := Resolve(context.Background(), ok, ModeCreate, nil)
	if err != nil || strat != StrategyValidateThenValues || got["title"] != "Hello" {
		t.Fatalf("got %#v, %v, %v", got, strat, err)
	}

	bad := &hookForm{errs: map[string]any{"title": map[string]any{"message": "Required", "type": "required"}}}
	_, _, err = Resolve(context.Background(), bad, ModeCreate, nil)
	var inv *InvalidFormError
	if !errors.As(err, &inv) {
		t.Fatalf("want InvalidFormError, got %v", err)
	}
	if errs := Normalize(err); errs["title"] != "Required" {
		t.Fatalf("normalized = %#v", errs)
	}
}

func TestResolve_HandleSubmit(t *testing.T) {
	for _, async := range []bool{false, true} {
		f := &submitForm{valid: Record{"qty": 2}, async: async}
		got, strat, err := Resolve(context.Background(), f, ModeCreate, nil)
		if err != nil || strat != StrategyHandleSubmit || got["qty"] != 2 {
			t.Fatalf("async=%v: got %#v, %v, %v", async, got, strat, err)
		}
	}

	f := &submitForm{invalid: map[string]any{"qty": "Must be positive"}}
	_, _, err := Resolve(context.Background(), f, ModeCreate, nil)
	if errs := Normalize(err); errs["qty"] != "Must be positive" {
		t.Fatalf("normalized = %#v", errs)
	}
}

func TestResolve_HandleSubmitHonoursContext(t *testing.T) {
	never := submitHandlerFunc(func(func(Record), func(any)) func(context.Context) {
		return func(context.Context) {}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := Resolve(ctx, never, ModeCreate, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

type submitHandlerFunc func(func(Record), func(any)) func(context.Context)

func (f submitHandlerFunc) HandleSubmit(v func(Record), i func(any)) func(context.Context) {
	return f(v, i)
}

func TestResolve_LowerRankedStrategies(t *testing.T) {
	cases := []struct {
		name   string
		handle FormHandle
		strat  Strategy
		want   Record
	}{
		{"values", valuesForm{Record{"a": 1}}, StrategyValues, Record{"a": 1}},
		{"elements", elementsForm{[]Element{{Name: "a", Value: "1"}, {Name: "", Value: "skip"}, {Name: "b", Value: ""}}},
			StrategyElements, Record{"a": "1", "b": ""}},
		{"props", propsForm{map[string]any{"values": map[string]any{"c": true}}}, StrategyProps, Record{"c": true}},
		{"state", stateForm{map[string]any{"d": "x"}}, StrategyState, Record{"d": "x"}},
		{"internal state", internalForm{map[string]any{"e": "y"}}, StrategyState, Record{"e": "y"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, strat, err := Resolve(context.Background(), tc.handle, ModeCreate, nil)
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if strat != tc.strat {
				t.Fatalf("strategy = %v, want %v", strat, tc.strat)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_NoCapability(t *testing.T) {
	if _, _, err := Resolve(context.Background(), struct{}{}, ModeCreate, nil); !errors.Is(err, ErrNoFormData) {
		t.Fatalf("want ErrNoFormData, got %v", err)
	}
	if _, _, err := Resolve(context.Background(), nil, ModeCreate, nil); !errors.Is(err, ErrNoFormData) {
		t.Fatalf("nil handle: want ErrNoFormData, got %v", err)
	}

	active := Record{"id": 7, "name": "Old"}
	got, strat, err := Resolve(context.Background(), nil, ModeEdit, active)
	if err != nil || strat != StrategyRecord {
		t.Fatalf("got %v, %v", strat, err)
	}
	if diff := cmp.Diff(active, got); diff != "" {
		t.Fatalf("fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_NilExtractionFallsBackToRecord(t *testing.T) {
	active := Record{"id": 3, "name": "Stale"}
	got, strat, err := Resolve(context.Background(), valuesForm{}, ModeEdit, active)
	if err != nil || strat != StrategyRecord || got["name"] != "Stale" {
		t.Fatalf("got %#v, %v, %v", got, strat, err)
	}

	if _, _, err := Resolve(context.Background(), valuesForm{}, ModeCreate, nil); !errors.Is(err, ErrNoFormData) {
		t.Fatalf("want ErrNoFormData, got %v", err)
	}
}

func TestResolve_EditInjectsID(t *testing.T) {
	active := Record{"id": "r-42", "name": "Old"}
	got, _, err := Resolve(context.Background(), valuesForm{Record{"name": "New"}}, ModeEdit, active)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got["id"] != "r-42" || got["name"] != "New" {
		t.Fatalf("got %#v", got)
	}

	// The record id replaces whatever the payload claims.
	got, _, _ = Resolve(context.Background(), valuesForm{Record{"id": "r-43", "_id": "r-43"}}, ModeEdit, active)
	if got["id"] != "r-42" || got["_id"] != "r-42" {
		t.Fatalf("payload id kept: %#v", got)
	}

	// Create never injects.
	got, _, _ = Resolve(context.Background(), valuesForm{Record{"name": "New"}}, ModeCreate, active)
	if _, ok := got["id"]; ok {
		t.Fatalf("create payload gained an id: %#v", got)
	}
}

func TestResolve_DoesNotMutateSources(t *testing.T) {
	values := Record{"name": "New"}
	active := Record{"id": 1}
	got, _, _ := Resolve(context.Background(), valuesForm{values}, ModeEdit, active)
	got["name"] = "Changed"
	if _, ok := values["id"]; ok || values["name"] != "New" {
		t.Fatalf("form values mutated: %#v", values)
	}
}

func TestProbe_Order(t *testing.T) {
	if got := Probe(&validatedForm{}); got != StrategyValidatedValues {
		t.Fatalf("validated form probed as %v", got)
	}
	if got := Probe(&hookForm{}); got != StrategyValidateThenValues {
		t.Fatalf("hook form probed as %v", got)
	}
	if got := Probe(validatorOnly{}); got != StrategyNone {
		t.Fatalf("Validate without GetValues probed as %v", got)
	}
}

type validatorOnly struct{}

func (validatorOnly) Validate(context.Context) (bool, error) { return true, nil }
