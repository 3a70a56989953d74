// internal/dialog/hooks.go
//
// Gridkit – Dialog subsystem: caller-supplied handlers and hooks.
//
// Context
//   Handlers perform the actual create, update, and delete.  Returning true
//   is the only success signal; false or a non-nil error is a failure, and
//   errors travel through Normalize because API-side validation errors share
//   the client-side shapes.
//
//   Hooks are optional and run strictly in sequence:
//
//       transforms → OnBeforeSubmit → OnValidSubmit → handler → OnAfterSubmit
//
//   A before-submit func returning ok == false vetoes the submission; the
//   Machine returns to idle and nothing later runs.
//
//------------------------------------------------------------------------------

package dialog

import "context"

// Handlers are the mode-specific operations.  Nil handlers fail with
// ErrNoHandler, except view which succeeds without one.
type Handlers struct {
	OnCreate func(ctx context.Context, data Record) (bool, error)
	OnUpdate func(ctx context.Context, id any, data Record) (bool, error)
	OnDelete func(ctx context.Context, id any) (bool, error)

	// Custom handles any mode outside the four built-ins.
	Custom map[Mode]func(ctx context.Context, data Record) (bool, error)
}

// BeforeSubmitFunc may replace the payload (non-nil Record) or veto the
// submission (ok == false).  Returning (nil, true) keeps the payload.
type BeforeSubmitFunc func(ctx context.Context, mode Mode, data Record) (Record, bool)

// Hooks are the optional lifecycle callbacks.
type Hooks struct {
	OnBeforeSubmit    BeforeSubmitFunc
	OnValidSubmit     func(ctx context.Context, mode Mode, data Record) Record
	OnAfterSubmit     func(ctx context.Context, mode Mode, data Record, success bool)
	OnInvalidSubmit   func(ctx context.Context, mode Mode, errs Errors)
	OnValidationError func(ctx context.Context, mode Mode, errs Errors)
}

// beforeChain runs builtin transforms first, then the caller hook.
func beforeChain(ctx context.Context, mode Mode, data Record, transforms []BeforeSubmitFunc, hooks Hooks) (Record, bool) {
	chain := transforms
	if hooks.OnBeforeSubmit != nil {
		chain = append(chain[:len(chain):len(chain)], hooks.OnBeforeSubmit)
	}
	for _, fn := range chain {
		if fn == nil {
			continue
		}
		next, ok := fn(ctx, mode, data.Clone())
		if !ok {
			return nil, false
		}
		if next != nil {
			data = next
		}
	}
	if hooks.OnValidSubmit != nil {
		if next := hooks.OnValidSubmit(ctx, mode, data.Clone()); next != nil {
			data = next
		}
	}
	return data, true
}
