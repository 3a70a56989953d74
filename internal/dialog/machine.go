// internal/dialog/machine.go
//
// Gridkit – Dialog subsystem: submission state machine.
//
// Context
//   One Machine exists per open dialog.  Submit drives
//
//       idle → validating → submitting → succeeded | failed
//
//   and settles there; succeeded and failed both accept the next Submit.  A
//   Submit issued while validating or submitting returns false immediately,
//   so double confirms never reach the handler twice.
//
// Close safety
//   Close advances the Machine's generation.  Each Submit captures the
//   generation it started under and re-checks it after every blocking call
//   (resolver, hooks, handler).  A mismatch discards the continuation
//   silently: no state change, no hooks, no observer call.
//
// Limitations
//   No timeout is imposed.  A handler that never returns leaves the Machine
//   in submitting until the caller's context plumbing gives up.
//
//------------------------------------------------------------------------------

package dialog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/gridkit/internal/logger"
	"github.com/yanizio/gridkit/internal/metrics"
)

// State is the submission state of one dialog.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// busy reports whether a submission is in flight.
func (s State) busy() bool { return s == StateValidating || s == StateSubmitting }

// Options configures a Machine.
type Options struct {
	Mode     Mode
	Handle   FormHandle
	Record   Record
	Handlers Handlers
	Hooks    Hooks

	// Transforms run before Hooks.OnBeforeSubmit, in order.
	Transforms []BeforeSubmitFunc

	// OnStateChange observes every applied transition.
	OnStateChange func(State)

	// OnClose is invoked after a successful submission.
	OnClose func()

	// Logger defaults to the logger carried by the Submit context.
	Logger *zap.SugaredLogger
}

// Machine is safe for concurrent use.
type Machine struct {
	mode       Mode
	handlers   Handlers
	hooks      Hooks
	transforms []BeforeSubmitFunc
	observe    func(State)
	onClose    func()
	log        *zap.SugaredLogger

	mu     sync.Mutex
	handle FormHandle
	record Record
	state  State
	errs   Errors
	err    error
	gen    uint64
	closed bool
}

// NewMachine returns an idle Machine for opts.Mode.
func NewMachine(opts Options) *Machine {
	mode := opts.Mode
	if mode == "" {
		mode = ModeCreate
	}
	return &Machine{
		mode:       mode,
		handlers:   opts.Handlers,
		hooks:      opts.Hooks,
		transforms: opts.Transforms,
		observe:    opts.OnStateChange,
		onClose:    opts.OnClose,
		log:        opts.Logger,
		handle:     opts.Handle,
		record:     opts.Record.Clone(),
		state:      StateIdle,
	}
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func (m *Machine) Mode() Mode { return m.mode }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Errors returns a copy of the errors stored by the last failed attempt.
func (m *Machine) Errors() Errors {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs.Clone()
}

// Err returns the typed error of the last failed attempt.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Record returns a copy of the ActiveRecord.
func (m *Machine) Record() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Clone()
}

// SetRecord replaces the ActiveRecord for subsequent submissions.
func (m *Machine) SetRecord(r Record) {
	m.mu.Lock()
	m.record = r.Clone()
	m.mu.Unlock()
}

// SetHandle rebinds the form handle, e.g. after the form remounts.
func (m *Machine) SetHandle(h FormHandle) {
	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()
}

// Close discards every in-flight continuation.  A closed Machine rejects
// further submissions.
func (m *Machine) Close() {
	m.mu.Lock()
	m.gen++
	m.closed = true
	m.mu.Unlock()
}

// Closed reports whether Close was called.
func (m *Machine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// -----------------------------------------------------------------------------
// Submit
// -----------------------------------------------------------------------------

// attempt carries the values one Submit captured when it started.
type attempt struct {
	gen    uint64
	handle FormHandle
	record Record
	start  time.Time
}

// Submit runs one submission and reports whether it succeeded.  It returns
// false without side effects when a submission is already in flight or the
// Machine is closed.
func (m *Machine) Submit(ctx context.Context) bool {
	at, ok := m.begin(ctx)
	if !ok {
		return false
	}
	if m.mode == ModeDelete {
		return m.submit(ctx, at, at.record)
	}

	data, strategy, err := m.resolve(ctx, at)
	if !m.alive(at.gen) {
		return false
	}
	metrics.StrategyTotal.WithLabelValues(strategy.String()).Inc()

	if err != nil {
		errs := Normalize(err)
		ve := &ValidationError{Mode: m.mode, Errors: errs, Cause: err}
		if !m.settle(ctx, at, StateFailed, errs, ve) {
			return false
		}
		metrics.ValidationFailuresTotal.WithLabelValues(string(m.mode)).Inc()
		if m.hooks.OnValidationError != nil {
			m.hooks.OnValidationError(ctx, m.mode, errs.Clone())
		}
		if m.hooks.OnInvalidSubmit != nil {
			m.hooks.OnInvalidSubmit(ctx, m.mode, errs.Clone())
		}
		return false
	}
	return m.submit(ctx, at, data)
}

// begin applies the in-flight guard and, for delete, the identity check.
func (m *Machine) begin(ctx context.Context) (attempt, bool) {
	m.mu.Lock()
	if m.closed || m.state.busy() {
		m.mu.Unlock()
		metrics.RejectedSubmitsTotal.WithLabelValues(string(m.mode)).Inc()
		return attempt{}, false
	}

	at := attempt{gen: m.gen, handle: m.handle, record: m.record.Clone(), start: time.Now()}
	m.errs, m.err = nil, nil

	next := StateValidating
	if m.mode == ModeDelete {
		if _, ok := at.record.ID(); !ok {
			m.state = StateFailed
			m.errs = Errors{FormErrorKey: msgMissingID}
			m.err = &MissingIdentityError{Mode: m.mode}
			m.mu.Unlock()
			m.notify(StateFailed)
			m.logSettle(ctx, at, StateFailed)
			return attempt{}, false
		}
		next = StateSubmitting
	}
	m.state = next
	m.mu.Unlock()
	m.notify(next)
	return at, true
}

// submit runs the hook chain and the mode handler for a validated payload.
func (m *Machine) submit(ctx context.Context, at attempt, data Record) bool {
	data, ok, err := m.before(ctx, data)
	if !m.alive(at.gen) {
		return false
	}
	if err != nil {
		errs := Normalize(err)
		m.settle(ctx, at, StateFailed, errs, &SubmissionError{Mode: m.mode, Errors: errs, Cause: err})
		return false
	}
	if !ok {
		m.settle(ctx, at, StateIdle, nil, nil)
		return false
	}

	if m.mode != ModeDelete && !m.transition(at.gen, StateSubmitting) {
		return false
	}

	success, err := m.invoke(ctx, at, data)
	if !m.alive(at.gen) {
		return false
	}
	if err != nil {
		success = false
	}

	if success {
		if !m.settle(ctx, at, StateSucceeded, nil, nil) {
			return false
		}
	} else {
		var errs Errors
		if err != nil {
			errs = Normalize(err)
		} else {
			errs = Errors{FormErrorKey: msgSubmitFailed}
		}
		se := &SubmissionError{Mode: m.mode, Errors: errs, Cause: err}
		if !m.settle(ctx, at, StateFailed, errs, se) {
			return false
		}
	}

	if m.hooks.OnAfterSubmit != nil {
		m.hooks.OnAfterSubmit(ctx, m.mode, data.Clone(), success)
	}
	if success && m.onClose != nil {
		m.onClose()
	}
	return success
}

// resolve runs Resolve.  A panicking form handle, typically a typed nil whose
// component went away, counts as a failed validation.
func (m *Machine) resolve(ctx context.Context, at attempt) (data Record, s Strategy, err error) {
	s = Probe(at.handle)
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("dialog %s: form handle panic: %v", m.mode, r)
		}
	}()
	return Resolve(ctx, at.handle, m.mode, at.record)
}

// before runs the before-submit chain.  A panicking hook fails the
// submission.
func (m *Machine) before(ctx context.Context, data Record) (out Record, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, ok, err = nil, false, fmt.Errorf("dialog %s: hook panic: %v", m.mode, r)
		}
	}()
	out, ok = beforeChain(ctx, m.mode, data, m.transforms, m.hooks)
	return out, ok, nil
}

// invoke calls the mode handler.  A panicking handler counts as a failure.
func (m *Machine) invoke(ctx context.Context, at attempt, data Record) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("dialog %s: handler panic: %v", m.mode, r)
		}
	}()

	// For edit and delete the opened record decides which row is touched; the
	// payload only supplies an id when the dialog was opened without one.
	id, hasID := at.record.ID()
	switch {
	case !hasID:
		id, _ = data.ID()
	case m.mode == ModeEdit:
		data = data.WithID(id)
	}

	switch m.mode {
	case ModeCreate:
		if m.handlers.OnCreate == nil {
			return false, ErrNoHandler
		}
		return m.handlers.OnCreate(ctx, data)
	case ModeEdit:
		if m.handlers.OnUpdate == nil {
			return false, ErrNoHandler
		}
		return m.handlers.OnUpdate(ctx, id, data)
	case ModeDelete:
		if m.handlers.OnDelete == nil {
			return false, ErrNoHandler
		}
		return m.handlers.OnDelete(ctx, id)
	}

	if fn := m.handlers.Custom[m.mode]; fn != nil {
		return fn(ctx, data)
	}
	if m.mode == ModeView {
		return true, nil
	}
	return false, ErrNoHandler
}

// -----------------------------------------------------------------------------
// Transition helpers
// -----------------------------------------------------------------------------

func (m *Machine) alive(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

// transition applies s when gen is still current.
func (m *Machine) transition(gen uint64, s State) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.state = s
	m.mu.Unlock()
	m.notify(s)
	return true
}

// settle applies a resting state together with its errors.
func (m *Machine) settle(ctx context.Context, at attempt, s State, errs Errors, err error) bool {
	m.mu.Lock()
	if at.gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.state, m.errs, m.err = s, errs, err
	m.mu.Unlock()

	m.notify(s)
	m.logSettle(ctx, at, s)
	return true
}

func (m *Machine) notify(s State) {
	if m.observe != nil {
		m.observe(s)
	}
}

func (m *Machine) logSettle(ctx context.Context, at attempt, s State) {
	outcome := string(s)
	if s == StateIdle {
		outcome = "vetoed"
	}
	metrics.SubmissionsTotal.WithLabelValues(string(m.mode), outcome).Inc()
	if !at.start.IsZero() {
		metrics.SubmitDuration.WithLabelValues(string(m.mode)).Observe(time.Since(at.start).Seconds())
	}

	l := m.log
	if l == nil {
		l = logger.FromContext(ctx)
	}
	m.mu.Lock()
	errs, err := m.errs, m.err
	m.mu.Unlock()
	if s == StateFailed {
		l.Infow("dialog submission failed", "mode", string(m.mode), "fields", len(errs), "error", err)
		return
	}
	l.Debugw("dialog settled", "mode", string(m.mode), "state", string(s))
}
