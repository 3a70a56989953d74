// internal/dialog/resolver.go
//
// Gridkit – Dialog subsystem: form handle resolver.
//
// Context
//   Resolve turns an opaque FormHandle into a payload.  It walks a fixed,
//   ranked list of capability checks and attempts exactly one strategy, the
//   first whose capability is present.  Strategies are never merged.
//
// Workflow
//   1.  GetValidatedValues            → error is the validation source.
//   2.  Validate + GetValues          → FormErrors on failure.
//   3.  HandleSubmit(onValid, onInv)  → first callback wins.
//   4.  GetValues                     → always valid.
//   5.  Elements                      → name/value pairs.
//   6.  Props()["values"]
//   7.  State, then InternalState
//   8.  nothing                       → ErrNoFormData without a record.
//
//   A nil payload with an ActiveRecord present falls back to a copy of the
//   record.  Edit payloads always carry the record id.
//
//------------------------------------------------------------------------------

package dialog

import (
	"context"
	"errors"
	"sync"

	"github.com/yanizio/gridkit/internal/logger"
)

// Strategy identifies which capability Resolve used.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyValidatedValues
	StrategyValidateThenValues
	StrategyHandleSubmit
	StrategyValues
	StrategyElements
	StrategyProps
	StrategyState
	StrategyRecord // ActiveRecord fallback
)

var strategyNames = [...]string{
	"none",
	"validated_values",
	"validate_then_values",
	"handle_submit",
	"values",
	"elements",
	"props",
	"state",
	"record",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "unknown"
	}
	return strategyNames[s]
}

// Probe reports the strategy Resolve would attempt for h, without calling it.
func Probe(h FormHandle) Strategy {
	switch v := h.(type) {
	case nil:
		return StrategyNone
	case ValidatedValuesGetter:
		return StrategyValidatedValues
	case Validator:
		if _, ok := v.(ValuesGetter); ok {
			return StrategyValidateThenValues
		}
	}
	switch h.(type) {
	case SubmitHandler:
		return StrategyHandleSubmit
	case ValuesGetter:
		return StrategyValues
	case ElementsProvider:
		return StrategyElements
	case PropsProvider:
		return StrategyProps
	case StateProvider, InternalStateProvider:
		return StrategyState
	}
	return StrategyNone
}

// Resolve validates and extracts data from h for mode.  Errors raised by the
// chosen strategy are returned unmodified so Normalize sees the original
// library shape.
func Resolve(ctx context.Context, h FormHandle, mode Mode, active Record) (Record, Strategy, error) {
	strategy := Probe(h)

	var (
		data Record
		err  error
	)
	switch strategy {
	case StrategyValidatedValues:
		data, err = h.(ValidatedValuesGetter).GetValidatedValues(ctx)
	case StrategyValidateThenValues:
		data, err = validateThenValues(ctx, h)
	case StrategyHandleSubmit:
		data, err = awaitSubmit(ctx, h.(SubmitHandler))
	case StrategyValues:
		data = h.(ValuesGetter).GetValues()
	case StrategyElements:
		data = fromElements(h.(ElementsProvider).Elements())
	case StrategyProps:
		data = fromProps(h.(PropsProvider).Props())
	case StrategyState:
		data = fromState(h)
	case StrategyNone:
		if active == nil {
			return nil, StrategyNone, ErrNoFormData
		}
		return active.Clone(), StrategyRecord, nil
	}
	if err != nil {
		return nil, strategy, err
	}

	if data == nil {
		if active == nil {
			return nil, strategy, ErrNoFormData
		}
		// Extraction produced nothing; resubmit the record as it was opened.
		logger.FromContext(ctx).Warnw("form extraction empty, submitting active record",
			"mode", string(mode), "strategy", strategy.String())
		return active.Clone(), StrategyRecord, nil
	}

	if mode == ModeEdit {
		if id, ok := active.ID(); ok {
			return data.WithID(id), strategy, nil
		}
	}
	return data.Clone(), strategy, nil
}

// -----------------------------------------------------------------------------
// Strategy helpers
// -----------------------------------------------------------------------------

func validateThenValues(ctx context.Context, h FormHandle) (Record, error) {
	ok, err := h.(Validator).Validate(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		var src any
		if rep, has := h.(ErrorsReporter); has {
			src = rep.FormErrors()
		}
		return nil, &InvalidFormError{Source: src}
	}
	return h.(ValuesGetter).GetValues(), nil
}

// awaitSubmit folds the dual-callback pattern into one result.  Only the
// first callback counts; later calls are dropped.
func awaitSubmit(ctx context.Context, h SubmitHandler) (Record, error) {
	type outcome struct {
		data    Record
		invalid any
		valid   bool
	}
	ch := make(chan outcome, 1)
	var once sync.Once
	send := func(o outcome) { once.Do(func() { ch <- o }) }

	trigger := h.HandleSubmit(
		func(d Record) { send(outcome{data: d, valid: true}) },
		func(p any) { send(outcome{invalid: p}) },
	)
	if trigger == nil {
		return nil, errors.New("dialog: HandleSubmit returned no trigger")
	}
	trigger(ctx)

	select {
	case o := <-ch:
		if o.valid {
			return o.data, nil
		}
		return nil, &InvalidFormError{Source: o.invalid}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fromElements(els []Element) Record {
	if els == nil {
		return nil
	}
	out := make(Record, len(els))
	for _, el := range els {
		if el.Name == "" {
			continue
		}
		out[el.Name] = el.Value
	}
	return out
}

func fromProps(props map[string]any) Record {
	switch v := props["values"].(type) {
	case Record:
		return v
	case map[string]any:
		return Record(v)
	default:
		return nil
	}
}

func fromState(h FormHandle) Record {
	if sp, ok := h.(StateProvider); ok {
		if s := sp.State(); s != nil {
			return Record(s)
		}
		return nil
	}
	if s := h.(InternalStateProvider).InternalState(); s != nil {
		return Record(s)
	}
	return nil
}
