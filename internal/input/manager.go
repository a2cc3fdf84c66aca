package input

import (
	"github.com/deskbridge/deskbridge/internal/control"
	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/protocol"
)

// Sink receives events that survived the full pipeline. Implemented by
// the transport session.
type Sink interface {
	SendInput(event *protocol.InputEvent) error
}

// ManagerConfig aggregates handler tuning for construction.
type ManagerConfig struct {
	Mouse     MouseConfig
	Keyboard  KeyboardConfig
	Touch     TouchConfig
	Validator ValidatorConfig
	SourceID  string // client identity stamped on forwarded events
}

// DefaultManagerConfig returns stock tuning for all handlers.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Mouse:     DefaultMouseConfig(),
		Keyboard:  DefaultKeyboardConfig(),
		Touch:     DefaultTouchConfig(),
		Validator: DefaultValidatorConfig(),
	}
}

// Manager composes the per-modality handlers, focus gate, control
// arbiter and transport sink into the capture-to-wire pipeline. It is
// the single object a host UI drives.
type Manager struct {
	Mouse    *MouseHandler
	Keyboard *KeyboardHandler
	Touch    *TouchHandler
	Focus    *FocusManager

	validator *Validator
	arbiter   *control.Arbiter
	sink      Sink
	sourceID  string
}

// NewManager wires the pipeline together. Events flow handler →
// validator → focus gate → control gate → sink; a nil sink drops
// everything that would have been forwarded.
func NewManager(cfg ManagerConfig, validator *Validator, arbiter *control.Arbiter, sink Sink) *Manager {
	m := &Manager{
		Focus:     NewFocusManager(),
		validator: validator,
		arbiter:   arbiter,
		sink:      sink,
		sourceID:  cfg.SourceID,
	}
	m.Mouse = NewMouseHandler(cfg.Mouse, m.forward)
	m.Keyboard = NewKeyboardHandler(cfg.Keyboard, m.forward)
	m.Touch = NewTouchHandler(cfg.Touch, m.forward)

	// Focus loss must not leave stuck keys on the remote side.
	m.Focus.OnFocusLost(m.Keyboard.ClearKeyStates)
	m.Focus.OnFocusLost(m.Touch.Clear)
	m.Focus.OnFocusLost(m.Mouse.Reset)
	return m
}

// forward is the single pipeline exit: every handler emission passes
// the validator and both gates before reaching the transport.
func (m *Manager) forward(event *protocol.InputEvent) {
	actor := m.arbiter.LocalActor()
	if event.SourceID == "" {
		event.SourceID = m.sourceID
	}

	if ok, reason := m.validator.Validate(actor, event); !ok {
		logger.Debugf("Input rejected: %s (%s)", event.Summary(), reason)
		return
	}

	if !m.Focus.Focused() {
		return
	}
	if !m.arbiter.HasLocalControl() {
		return
	}
	if m.sink == nil {
		return
	}

	if err := m.sink.SendInput(event); err != nil {
		// A single failed send is absorbed; session-level failures
		// surface through the transport state machine.
		logger.Debugf("Failed to forward %s: %v", event.Summary(), err)
	}
}

// Teardown cancels every pending handler timer. No timer may fire
// after the viewer closes.
func (m *Manager) Teardown() {
	m.Keyboard.ClearKeyStates()
	m.Touch.Clear()
	m.Mouse.Reset()
}
