// Package protocol defines the canonical input-event model exchanged
// with the remote framebuffer server, along with the session telemetry
// types shared between the transport layer and the UI.
package protocol

import (
	"errors"
	"time"
)

// EventType discriminates the InputEvent union.
type EventType string

const (
	EventMouse    EventType = "mouse"
	EventKeyboard EventType = "keyboard"
	EventTouch    EventType = "touch"
	EventControl  EventType = "control"
)

// Mouse actions.
const (
	MouseMove    = "move"
	MouseDown    = "down"
	MouseUp      = "up"
	MouseScroll  = "scroll"
	MouseContext = "context"
)

// Keyboard actions.
const (
	KeyDown     = "down"
	KeyUp       = "up"
	KeyRepeat   = "repeat"
	KeyComposed = "composed"
	KeyInput    = "input"
)

// Touch actions.
const (
	TouchTap       = "tap"
	TouchDoubleTap = "double-tap"
	TouchLongPress = "long-press"
	TouchSwipe     = "swipe"
	TouchPinch     = "pinch"
	TouchMulti     = "multi-touch"
	TouchCancel    = "cancel"
)

// Mouse buttons, numbered as the framebuffer protocol expects them.
const (
	ButtonLeft   = 0
	ButtonMiddle = 1
	ButtonRight  = 2
)

// Modifier bits attached to keyboard events.
const (
	ModShift uint32 = 1 << 0
	ModCtrl  uint32 = 1 << 1
	ModAlt   uint32 = 1 << 2
	ModMeta  uint32 = 1 << 3
)

var ErrMalformedEvent = errors.New("malformed input event")

// InputEvent is the canonical, modality-tagged record forwarded to the
// transport. Exactly one variant pointer matching Type is set. Events
// are immutable once constructed; handlers never mutate an event they
// have already emitted.
type InputEvent struct {
	Type      EventType      `cbor:"1,keyasint"`
	Mouse     *MouseEvent    `cbor:"2,keyasint,omitempty"`
	Keyboard  *KeyboardEvent `cbor:"3,keyasint,omitempty"`
	Touch     *TouchEvent    `cbor:"4,keyasint,omitempty"`
	Control   *ControlEvent  `cbor:"5,keyasint,omitempty"`
	Timestamp int64          `cbor:"6,keyasint"` // capture time, unix nanos
	SourceID  string         `cbor:"7,keyasint,omitempty"`
}

// MouseEvent carries pointer state for a single mouse action.
type MouseEvent struct {
	Action     string  `cbor:"1,keyasint"`
	X          float64 `cbor:"2,keyasint"`
	Y          float64 `cbor:"3,keyasint"`
	Button     int     `cbor:"4,keyasint,omitempty"`
	DeltaX     float64 `cbor:"5,keyasint,omitempty"`
	DeltaY     float64 `cbor:"6,keyasint,omitempty"`
	ClickCount int     `cbor:"7,keyasint,omitempty"`
}

// KeyboardEvent carries one keyboard action. For composed and input
// actions, Text holds the full string and Keysym is zero.
type KeyboardEvent struct {
	Key       string `cbor:"1,keyasint"`
	Action    string `cbor:"2,keyasint"`
	Code      string `cbor:"3,keyasint,omitempty"`
	Keysym    uint32 `cbor:"4,keyasint,omitempty"`
	Modifiers uint32 `cbor:"5,keyasint,omitempty"`
	Text      string `cbor:"6,keyasint,omitempty"`
}

// TouchEvent carries a classified gesture or a structural multi-touch
// snapshot.
type TouchEvent struct {
	Action    string       `cbor:"1,keyasint"`
	X         float64      `cbor:"2,keyasint,omitempty"`
	Y         float64      `cbor:"3,keyasint,omitempty"`
	Direction string       `cbor:"4,keyasint,omitempty"`
	Distance  float64      `cbor:"5,keyasint,omitempty"`
	Scale     float64      `cbor:"6,keyasint,omitempty"`
	Touches   []TouchPoint `cbor:"7,keyasint,omitempty"`
}

// TouchPoint is one active contact.
type TouchPoint struct {
	ID     int     `cbor:"1,keyasint"`
	X      float64 `cbor:"2,keyasint"`
	Y      float64 `cbor:"3,keyasint"`
	StartX float64 `cbor:"4,keyasint"`
	StartY float64 `cbor:"5,keyasint"`
}

// Control event types.
const (
	ControlTake    = "take-control"
	ControlRelease = "release-control"
)

// ControlEvent announces a control handoff on the wire.
type ControlEvent struct {
	Type   string `cbor:"1,keyasint"`
	Actor  string `cbor:"2,keyasint"`
	Reason string `cbor:"3,keyasint,omitempty"`
}

// NewMouseEvent wraps a MouseEvent into a timestamped InputEvent.
func NewMouseEvent(m *MouseEvent) *InputEvent {
	return &InputEvent{
		Type:      EventMouse,
		Mouse:     m,
		Timestamp: time.Now().UnixNano(),
	}
}

// NewKeyboardEvent wraps a KeyboardEvent into a timestamped InputEvent.
func NewKeyboardEvent(k *KeyboardEvent) *InputEvent {
	return &InputEvent{
		Type:      EventKeyboard,
		Keyboard:  k,
		Timestamp: time.Now().UnixNano(),
	}
}

// NewTouchEvent wraps a TouchEvent into a timestamped InputEvent.
func NewTouchEvent(te *TouchEvent) *InputEvent {
	return &InputEvent{
		Type:      EventTouch,
		Touch:     te,
		Timestamp: time.Now().UnixNano(),
	}
}

// NewControlEvent wraps a ControlEvent into a timestamped InputEvent.
func NewControlEvent(c *ControlEvent) *InputEvent {
	return &InputEvent{
		Type:      EventControl,
		Control:   c,
		Timestamp: time.Now().UnixNano(),
	}
}

// Validate checks that exactly one variant is set and that it matches
// the declared type. The transport boundary rejects anything else.
func (e *InputEvent) Validate() error {
	if e == nil {
		return ErrMalformedEvent
	}
	set := 0
	if e.Mouse != nil {
		set++
	}
	if e.Keyboard != nil {
		set++
	}
	if e.Touch != nil {
		set++
	}
	if e.Control != nil {
		set++
	}
	if set != 1 {
		return ErrMalformedEvent
	}
	switch e.Type {
	case EventMouse:
		if e.Mouse == nil {
			return ErrMalformedEvent
		}
	case EventKeyboard:
		if e.Keyboard == nil {
			return ErrMalformedEvent
		}
	case EventTouch:
		if e.Touch == nil {
			return ErrMalformedEvent
		}
	case EventControl:
		if e.Control == nil {
			return ErrMalformedEvent
		}
	default:
		return ErrMalformedEvent
	}
	return nil
}

// Summary returns a short human-readable description for audit records.
func (e *InputEvent) Summary() string {
	switch {
	case e.Mouse != nil:
		return "mouse/" + e.Mouse.Action
	case e.Keyboard != nil:
		return "keyboard/" + e.Keyboard.Action
	case e.Touch != nil:
		return "touch/" + e.Touch.Action
	case e.Control != nil:
		return "control/" + e.Control.Type
	}
	return "unknown"
}
