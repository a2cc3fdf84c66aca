package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deskbridge/deskbridge/internal/protocol"
)

func newTestKeyboard(cfg KeyboardConfig) (*KeyboardHandler, *eventRecorder) {
	rec := &eventRecorder{}
	return NewKeyboardHandler(cfg, rec.emit), rec
}

func keyActions(rec *eventRecorder) []string {
	var out []string
	for _, ev := range rec.all() {
		if ev.Keyboard != nil {
			out = append(out, ev.Keyboard.Action)
		}
	}
	return out
}

func TestKeyboardHandlerPressRelease(t *testing.T) {
	t.Run("down then up", func(t *testing.T) {
		h, rec := newTestKeyboard(DefaultKeyboardConfig())

		h.HandleKeyDown(KeyEvent{Key: "a", Code: "KeyA"})
		h.HandleKeyUp(KeyEvent{Key: "a", Code: "KeyA"})

		assert.Equal(t, []string{protocol.KeyDown, protocol.KeyUp}, keyActions(rec))
		assert.Equal(t, 0, h.PressedCount())
	})

	t.Run("repeated down is deduplicated", func(t *testing.T) {
		h, rec := newTestKeyboard(DefaultKeyboardConfig())

		h.HandleKeyDown(KeyEvent{Key: "a", Code: "KeyA"})
		h.HandleKeyDown(KeyEvent{Key: "a", Code: "KeyA"})
		h.HandleKeyDown(KeyEvent{Key: "a", Code: "KeyA"})

		assert.Len(t, rec.events, 1)
		assert.Equal(t, 1, h.PressedCount())
	})

	t.Run("up without down is ignored", func(t *testing.T) {
		h, rec := newTestKeyboard(DefaultKeyboardConfig())

		h.HandleKeyUp(KeyEvent{Key: "a", Code: "KeyA"})

		assert.Empty(t, rec.events)
	})

	t.Run("left and right modifiers are distinct keys", func(t *testing.T) {
		h, _ := newTestKeyboard(DefaultKeyboardConfig())

		h.HandleKeyDown(KeyEvent{Key: "Shift", Code: "ShiftLeft", Location: LocationLeft})
		h.HandleKeyDown(KeyEvent{Key: "Shift", Code: "ShiftRight", Location: LocationRight})

		assert.Equal(t, 2, h.PressedCount())
	})
}

func TestKeyboardHandlerKeysyms(t *testing.T) {
	tests := []struct {
		name      string
		event     KeyEvent
		wantSym   uint32
		wantShift bool
	}{
		{
			name:    "lowercase letter",
			event:   KeyEvent{Key: "a", Code: "KeyA"},
			wantSym: 0x61,
		},
		{
			name:      "uppercase letter implies shift",
			event:     KeyEvent{Key: "A", Code: "KeyA", Shift: true},
			wantSym:   0x41,
			wantShift: true,
		},
		{
			name:    "enter",
			event:   KeyEvent{Key: "Enter", Code: "Enter"},
			wantSym: 0xff0d,
		},
		{
			name:    "function key",
			event:   KeyEvent{Key: "F1", Code: "F1"},
			wantSym: 0xffbe,
		},
		{
			name:      "shifted punctuation resolves to base key plus shift",
			event:     KeyEvent{Key: "!", Code: "Digit1", Shift: true},
			wantSym:   0x31, // "1"
			wantShift: true,
		},
		{
			name:    "left shift",
			event:   KeyEvent{Key: "Shift", Code: "ShiftLeft", Location: LocationLeft},
			wantSym: 0xffe1,
		},
		{
			name:    "right shift",
			event:   KeyEvent{Key: "Shift", Code: "ShiftRight", Location: LocationRight},
			wantSym: 0xffe2,
		},
		{
			name:    "non-latin1 rune gets the unicode offset",
			event:   KeyEvent{Key: "€", Code: "KeyE"},
			wantSym: 0x01000000 + 0x20ac,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, rec := newTestKeyboard(DefaultKeyboardConfig())

			h.HandleKeyDown(tt.event)

			assert.Len(t, rec.events, 1)
			kb := rec.events[0].Keyboard
			assert.Equal(t, tt.wantSym, kb.Keysym)
			assert.Equal(t, tt.wantShift, kb.Modifiers&protocol.ModShift != 0)
		})
	}
}

func TestKeyboardHandlerModifierBits(t *testing.T) {
	h, rec := newTestKeyboard(DefaultKeyboardConfig())

	h.HandleKeyDown(KeyEvent{Key: "c", Code: "KeyC", Ctrl: true, Alt: true})

	kb := rec.events[0].Keyboard
	assert.NotZero(t, kb.Modifiers&protocol.ModCtrl)
	assert.NotZero(t, kb.Modifiers&protocol.ModAlt)
	assert.Zero(t, kb.Modifiers&protocol.ModShift)
	assert.Zero(t, kb.Modifiers&protocol.ModMeta)
}

func TestKeyboardHandlerAutoRepeat(t *testing.T) {
	t.Run("repeats after delay until release", func(t *testing.T) {
		cfg := KeyboardConfig{
			RepeatDelay:    20 * time.Millisecond,
			RepeatInterval: 10 * time.Millisecond,
			Layout:         "us",
		}
		h, rec := newTestKeyboard(cfg)

		h.HandleKeyDown(KeyEvent{Key: "a", Code: "KeyA"})
		time.Sleep(60 * time.Millisecond)
		h.HandleKeyUp(KeyEvent{Key: "a", Code: "KeyA"})
		got := rec.count()
		time.Sleep(40 * time.Millisecond)

		actions := keyActions(rec)
		assert.Equal(t, protocol.KeyDown, actions[0])
		assert.GreaterOrEqual(t, got, 3) // down plus at least two repeats
		// Nothing fires after the release.
		assert.Equal(t, got, rec.count())
	})

	t.Run("no repeat before the delay", func(t *testing.T) {
		cfg := KeyboardConfig{
			RepeatDelay:    100 * time.Millisecond,
			RepeatInterval: 10 * time.Millisecond,
			Layout:         "us",
		}
		h, rec := newTestKeyboard(cfg)

		h.HandleKeyDown(KeyEvent{Key: "a", Code: "KeyA"})
		time.Sleep(30 * time.Millisecond)
		h.HandleKeyUp(KeyEvent{Key: "a", Code: "KeyA"})

		assert.Equal(t, []string{protocol.KeyDown, protocol.KeyUp}, keyActions(rec))
	})

	t.Run("a repeat never trails its release", func(t *testing.T) {
		cfg := KeyboardConfig{
			RepeatDelay:    time.Millisecond,
			RepeatInterval: time.Millisecond,
			Layout:         "us",
		}
		// Release repeatedly right around the repeat due time; whatever
		// interleaving the timer goroutine wins, the up must be the
		// last key event on the wire.
		for i := 0; i < 50; i++ {
			h, rec := newTestKeyboard(cfg)

			h.HandleKeyDown(KeyEvent{Key: "a", Code: "KeyA"})
			time.Sleep(time.Duration(500+100*(i%10)) * time.Microsecond)
			h.HandleKeyUp(KeyEvent{Key: "a", Code: "KeyA"})

			actions := keyActions(rec)
			assert.Equal(t, protocol.KeyUp, actions[len(actions)-1])
		}
	})

	t.Run("modifiers never repeat", func(t *testing.T) {
		cfg := KeyboardConfig{
			RepeatDelay:    10 * time.Millisecond,
			RepeatInterval: 5 * time.Millisecond,
			Layout:         "us",
		}
		h, rec := newTestKeyboard(cfg)

		h.HandleKeyDown(KeyEvent{Key: "Shift", Code: "ShiftLeft", Location: LocationLeft})
		time.Sleep(40 * time.Millisecond)

		assert.Equal(t, 1, rec.count())
	})
}

func TestKeyboardHandlerComposition(t *testing.T) {
	t.Run("keys are suppressed while composing", func(t *testing.T) {
		h, rec := newTestKeyboard(DefaultKeyboardConfig())

		h.HandleCompositionStart()
		h.HandleKeyDown(KeyEvent{Key: "n", Code: "KeyN"})
		h.HandleCompositionEnd("ñ")

		assert.Len(t, rec.events, 1)
		assert.Equal(t, protocol.KeyComposed, rec.events[0].Keyboard.Action)
		assert.Equal(t, "ñ", rec.events[0].Keyboard.Text)
	})

	t.Run("empty composition emits nothing", func(t *testing.T) {
		h, rec := newTestKeyboard(DefaultKeyboardConfig())

		h.HandleCompositionStart()
		h.HandleCompositionEnd("")

		assert.Empty(t, rec.events)
	})
}

func TestKeyboardHandlerDeadKeys(t *testing.T) {
	cfg := DefaultKeyboardConfig()
	cfg.Layout = "us-intl"

	t.Run("dead key buffers and composes", func(t *testing.T) {
		h, rec := newTestKeyboard(cfg)

		h.HandleKeyDown(KeyEvent{Key: "'", Code: "Quote"})
		assert.Empty(t, rec.events)

		h.HandleKeyDown(KeyEvent{Key: "e", Code: "KeyE"})
		assert.Len(t, rec.events, 1)
		assert.Equal(t, "é", rec.events[0].Keyboard.Key)
	})

	t.Run("no combination falls through to the plain key", func(t *testing.T) {
		h, rec := newTestKeyboard(cfg)

		h.HandleKeyDown(KeyEvent{Key: "'", Code: "Quote"})
		h.HandleKeyDown(KeyEvent{Key: "x", Code: "KeyX"})

		assert.Len(t, rec.events, 1)
		assert.Equal(t, "x", rec.events[0].Keyboard.Key)
	})

	t.Run("releasing a consumed dead key emits nothing", func(t *testing.T) {
		h, rec := newTestKeyboard(cfg)

		h.HandleKeyDown(KeyEvent{Key: "'", Code: "Quote"})
		h.HandleKeyUp(KeyEvent{Key: "'", Code: "Quote"})
		assert.Empty(t, rec.events)

		// The buffered dead key still composes after its release, and
		// only the composed key's down and up reach the wire; the dead
		// key's suppressed down owes no up.
		h.HandleKeyDown(KeyEvent{Key: "e", Code: "KeyE"})
		h.HandleKeyUp(KeyEvent{Key: "e", Code: "KeyE"})

		assert.Equal(t, []string{protocol.KeyDown, protocol.KeyUp}, keyActions(rec))
		assert.Equal(t, "é", rec.all()[0].Keyboard.Key)
	})

	t.Run("clear owes no release for a buffered dead key", func(t *testing.T) {
		h, rec := newTestKeyboard(cfg)

		h.HandleKeyDown(KeyEvent{Key: "'", Code: "Quote"})
		h.ClearKeyStates()

		assert.Empty(t, rec.events)
		assert.Equal(t, 0, h.PressedCount())
	})

	t.Run("us layout treats quote as a plain key", func(t *testing.T) {
		h, rec := newTestKeyboard(DefaultKeyboardConfig())

		h.HandleKeyDown(KeyEvent{Key: "'", Code: "Quote"})

		assert.Len(t, rec.events, 1)
	})
}

func TestKeyboardHandlerInput(t *testing.T) {
	h, rec := newTestKeyboard(DefaultKeyboardConfig())

	h.HandleInput("🎉")

	assert.Len(t, rec.events, 1)
	assert.Equal(t, protocol.KeyInput, rec.events[0].Keyboard.Action)
	assert.Equal(t, "🎉", rec.events[0].Keyboard.Text)
}

func TestKeyboardHandlerClearKeyStates(t *testing.T) {
	cfg := KeyboardConfig{
		RepeatDelay:    20 * time.Millisecond,
		RepeatInterval: 10 * time.Millisecond,
		Layout:         "us",
	}
	h, rec := newTestKeyboard(cfg)

	h.HandleKeyDown(KeyEvent{Key: "a", Code: "KeyA"})
	h.HandleKeyDown(KeyEvent{Key: "Shift", Code: "ShiftLeft", Location: LocationLeft})
	h.ClearKeyStates()

	assert.Equal(t, 0, h.PressedCount())

	// Two synthetic releases, one per pressed key.
	var ups int
	for _, ev := range rec.all() {
		if ev.Keyboard != nil && ev.Keyboard.Action == protocol.KeyUp {
			ups++
		}
	}
	assert.Equal(t, 2, ups)

	// The repeat timer died with the state.
	before := rec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, rec.count())
}
