package input

import (
	"sync"
	"time"

	"github.com/deskbridge/deskbridge/internal/protocol"
)

// KeyboardConfig tunes the keyboard handler.
type KeyboardConfig struct {
	RepeatDelay    time.Duration // before the first synthesized repeat
	RepeatInterval time.Duration // between subsequent repeats
	Layout         string
}

// DefaultKeyboardConfig returns the stock tuning.
func DefaultKeyboardConfig() KeyboardConfig {
	return KeyboardConfig{
		RepeatDelay:    500 * time.Millisecond,
		RepeatInterval: 40 * time.Millisecond,
		Layout:         "us",
	}
}

// keyID identifies a physical key. Code plus location, since left and
// right modifiers are distinct keys.
type keyID struct {
	code     string
	location KeyLocation
}

// KeyboardHandler is the stateful keyboard-event processor: key-state
// tracking, auto-repeat timers, IME composition and keysym translation.
// Events are emitted while the handler lock is held so wire order
// matches state order; emit must not call back into the handler.
type KeyboardHandler struct {
	mu   sync.Mutex
	cfg  KeyboardConfig
	emit func(*protocol.InputEvent)

	pressed      map[keyID]bool
	suppressedUp map[keyID]bool // keys consumed as dead keys, no up owed
	repeatTimers map[keyID]*time.Timer
	composing    bool
	layout       *Layout
	pendingDead  string
}

// NewKeyboardHandler creates a keyboard handler that emits canonical
// events through emit.
func NewKeyboardHandler(cfg KeyboardConfig, emit func(*protocol.InputEvent)) *KeyboardHandler {
	return &KeyboardHandler{
		cfg:          cfg,
		emit:         emit,
		pressed:      make(map[keyID]bool),
		suppressedUp: make(map[keyID]bool),
		repeatTimers: make(map[keyID]*time.Timer),
		layout:       LayoutByName(cfg.Layout),
	}
}

// SetLayout switches the active translation and dead-key table.
func (h *KeyboardHandler) SetLayout(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.layout = LayoutByName(name)
	h.pendingDead = ""
}

// HandleKeyDown processes a raw key press. Re-pressing a key already
// marked pressed produces no emission: OS-level auto-repeat must not be
// double-counted on top of this handler's own repeat timers.
func (h *KeyboardHandler) HandleKeyDown(e KeyEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.composing {
		return
	}

	id := keyID{code: e.Code, location: e.Location}
	if h.pressed[id] {
		return
	}
	h.pressed[id] = true

	// Dead keys buffer until the next keystroke. Their down was never
	// seen by the remote, so no up is owed either.
	if h.layout.IsDeadKey(e.Key) && h.pendingDead == "" {
		h.pendingDead = e.Key
		h.suppressedUp[id] = true
		return
	}

	key := e.Key
	if h.pendingDead != "" {
		if composed, ok := h.layout.ComposeDead(h.pendingDead, e.Key); ok {
			key = composed
		}
		h.pendingDead = ""
	}

	if isRepeatable(e.Key) {
		h.armRepeat(id, key, e)
	}
	h.emit(h.keyEvent(key, e, protocol.KeyDown))
}

// HandleKeyUp processes a raw key release.
func (h *KeyboardHandler) HandleKeyUp(e KeyEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := keyID{code: e.Code, location: e.Location}
	if !h.pressed[id] {
		return
	}
	delete(h.pressed, id)
	h.cancelRepeat(id)

	if h.suppressedUp[id] {
		delete(h.suppressedUp, id)
		return
	}

	h.emit(h.keyEvent(e.Key, e, protocol.KeyUp))
}

// HandleCompositionStart suppresses normal key emission while an IME
// composition is active.
func (h *KeyboardHandler) HandleCompositionStart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.composing = true
}

// HandleCompositionEnd emits the full composed string as a single
// event. Composed text cannot be decomposed into meaningful individual
// keystrokes for the remote protocol.
func (h *KeyboardHandler) HandleCompositionEnd(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.composing = false
	if text == "" {
		return
	}
	h.emit(protocol.NewKeyboardEvent(&protocol.KeyboardEvent{
		Key:    text,
		Action: protocol.KeyComposed,
		Text:   text,
	}))
}

// HandleInput emits multi-codepoint input (emoji and the like) that
// bypasses individual key synthesis.
func (h *KeyboardHandler) HandleInput(text string) {
	if text == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emit(protocol.NewKeyboardEvent(&protocol.KeyboardEvent{
		Key:    text,
		Action: protocol.KeyInput,
		Text:   text,
	}))
}

// ClearKeyStates releases all tracked pressed keys and cancels every
// repeat timer. Called on focus loss so no stuck keys bleed into the
// remote session.
func (h *KeyboardHandler) ClearKeyStates() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, timer := range h.repeatTimers {
		timer.Stop()
		delete(h.repeatTimers, id)
	}

	for id := range h.pressed {
		delete(h.pressed, id)
		if h.suppressedUp[id] {
			delete(h.suppressedUp, id)
			continue
		}
		h.emit(protocol.NewKeyboardEvent(&protocol.KeyboardEvent{
			Key:    id.code,
			Code:   id.code,
			Action: protocol.KeyUp,
		}))
	}
	h.pendingDead = ""
	h.composing = false
}

// PressedCount returns how many keys are currently tracked as pressed.
func (h *KeyboardHandler) PressedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pressed)
}

// keyEvent builds a canonical keyboard event. Caller holds the lock.
func (h *KeyboardHandler) keyEvent(key string, e KeyEvent, action string) *protocol.InputEvent {
	sym, needShift, _ := h.layout.Keysym(key, e.Location)
	mods := modifierBits(e)
	if needShift {
		mods |= protocol.ModShift
	}
	return protocol.NewKeyboardEvent(&protocol.KeyboardEvent{
		Key:       key,
		Code:      e.Code,
		Action:    action,
		Keysym:    sym,
		Modifiers: mods,
	})
}

// armRepeat starts the auto-repeat timer for a key. Caller holds the
// lock. At most one timer exists per key; arming replaces nothing
// because HandleKeyDown deduplicates pressed keys first.
func (h *KeyboardHandler) armRepeat(id keyID, key string, e KeyEvent) {
	h.repeatTimers[id] = time.AfterFunc(h.cfg.RepeatDelay, func() {
		h.fireRepeat(id, key, e)
	})
}

// fireRepeat emits one repeat and re-arms at the repeat interval. The
// pressed check and the emission both run under the lock: a key-up may
// have raced the timer, and a repeat must never trail its release on
// the wire.
func (h *KeyboardHandler) fireRepeat(id keyID, key string, e KeyEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.pressed[id] {
		delete(h.repeatTimers, id)
		return
	}
	h.repeatTimers[id] = time.AfterFunc(h.cfg.RepeatInterval, func() {
		h.fireRepeat(id, key, e)
	})
	h.emit(h.keyEvent(key, e, protocol.KeyRepeat))
}

// cancelRepeat stops a key's repeat timer. Caller holds the lock.
func (h *KeyboardHandler) cancelRepeat(id keyID) {
	if timer, ok := h.repeatTimers[id]; ok {
		timer.Stop()
		delete(h.repeatTimers, id)
	}
}

// isRepeatable reports whether a key participates in auto-repeat. Pure
// modifiers do not repeat.
func isRepeatable(key string) bool {
	switch key {
	case "Shift", "Control", "Alt", "Meta", "CapsLock", "NumLock", "ScrollLock":
		return false
	}
	return true
}

// modifierBits collapses the raw event's modifier flags into the wire
// bitmask.
func modifierBits(e KeyEvent) uint32 {
	var mods uint32
	if e.Shift {
		mods |= protocol.ModShift
	}
	if e.Ctrl {
		mods |= protocol.ModCtrl
	}
	if e.Alt {
		mods |= protocol.ModAlt
	}
	if e.Meta {
		mods |= protocol.ModMeta
	}
	return mods
}
