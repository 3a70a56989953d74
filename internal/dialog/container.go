// internal/dialog/container.go
//
// Gridkit – Dialog subsystem: dialog container.
//
// Context
//   The Container is the owner side of the pipeline.  It opens one Machine
//   per mode, hands forms their Props, confirms on the user's behalf, and
//   closes the Machine when the dialog goes away.  When a dialog is opened
//   without an explicit handle, the Container submits whatever form is
//   registered for that mode in its Registry.
//
//------------------------------------------------------------------------------

package dialog

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Props is what a form component receives.
type Props struct {
	Data             Record
	Loading          bool
	Error            string
	ValidationErrors Errors
	ReadOnly         bool
	OnSubmit         func(ctx context.Context) bool
	OnClose          func()
}

// ContainerOptions configures every Machine the Container opens.
type ContainerOptions struct {
	Handlers   Handlers
	Hooks      Hooks
	Transforms []BeforeSubmitFunc
	Logger     *zap.SugaredLogger
}

// Container owns the open dialogs.
type Container struct {
	opts     ContainerOptions
	registry *Registry

	mu       sync.Mutex
	machines map[Mode]*Machine
}

// NewContainer returns a Container that resolves unbound dialogs through
// reg.  A nil reg gets a fresh Registry.
func NewContainer(reg *Registry, opts ContainerOptions) *Container {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Container{opts: opts, registry: reg, machines: make(map[Mode]*Machine)}
}

// Registry returns the Registry forms should register with.
func (c *Container) Registry() *Registry { return c.registry }

// Open opens the dialog for mode with record, closing any dialog already
// open for that mode.  A nil handle binds the Registry's form for mode.
func (c *Container) Open(mode Mode, record Record, handle FormHandle) *Machine {
	if handle == nil {
		handle = c.registry.Handle(mode)
	}
	m := NewMachine(Options{
		Mode:       mode,
		Handle:     handle,
		Record:     record,
		Handlers:   c.opts.Handlers,
		Hooks:      c.opts.Hooks,
		Transforms: c.opts.Transforms,
		Logger:     c.opts.Logger,
	})
	// Closing after success must only ever close this machine.
	m.onClose = func() { c.closeIf(mode, m) }

	c.mu.Lock()
	prev := c.machines[mode]
	c.machines[mode] = m
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return m
}

// Machine returns the open Machine for mode, or nil.
func (c *Container) Machine(mode Mode) *Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machines[mode]
}

// Confirm submits the open dialog for mode.  It returns false when no dialog
// is open.
func (c *Container) Confirm(ctx context.Context, mode Mode) bool {
	m := c.Machine(mode)
	if m == nil {
		return false
	}
	return m.Submit(ctx)
}

// Close closes the dialog for mode and discards its pending work.
func (c *Container) Close(mode Mode) { c.closeIf(mode, nil) }

// closeIf closes the dialog for mode when want is nil or still the open one.
func (c *Container) closeIf(mode Mode, want *Machine) {
	c.mu.Lock()
	m := c.machines[mode]
	if m == nil || (want != nil && m != want) {
		c.mu.Unlock()
		return
	}
	delete(c.machines, mode)
	c.mu.Unlock()

	m.Close()
	c.registry.SetFormErrors(nil, mode)
}

// Props builds the form props for the dialog open in mode.
func (c *Container) Props(mode Mode) (Props, bool) {
	m := c.Machine(mode)
	if m == nil {
		return Props{}, false
	}
	return m.Props(func() { c.closeIf(mode, m) }), true
}

// Props snapshots the Machine for a form component.  onClose is wired to the
// props' OnClose.
func (m *Machine) Props(onClose func()) Props {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Props{
		Data:             m.record.Clone(),
		Loading:          m.state.busy(),
		Error:            m.errs.Form(),
		ValidationErrors: m.errs.Clone(),
		ReadOnly:         m.mode == ModeView || m.mode == ModeDelete,
		OnSubmit:         m.Submit,
		OnClose:          onClose,
	}
}
