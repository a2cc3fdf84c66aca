package input

import (
	"math"
	"sync"
	"time"

	"github.com/deskbridge/deskbridge/internal/protocol"
)

// Pixel-equivalents for the non-pixel wheel delta modes.
const (
	wheelLinePixels = 16
	wheelPagePixels = 800
)

// MouseConfig tunes the mouse handler.
type MouseConfig struct {
	MovementThreshold float64       // minimum px between emitted moves
	SmoothingFactor   float64       // 0 = raw positions, 1 = frozen
	DoubleClickWindow time.Duration
	DoubleClickSlop   float64       // px tolerance between paired clicks
	ScrollNoiseFloor  float64       // px, sub-floor deltas are dropped
	EnablePrediction  bool
}

// DefaultMouseConfig returns the stock tuning.
func DefaultMouseConfig() MouseConfig {
	return MouseConfig{
		MovementThreshold: 3,
		SmoothingFactor:   0,
		DoubleClickWindow: 300 * time.Millisecond,
		DoubleClickSlop:   5,
		ScrollNoiseFloor:  1,
		EnablePrediction:  false,
	}
}

type positionSample struct {
	x, y float64
	at   time.Time
}

const movementHistorySize = 10

// MouseHandler is the stateful mouse-event processor: movement
// thresholding and smoothing, click/double-click detection, scroll
// normalization and velocity tracking. Events are emitted while the
// handler lock is held so wire order matches state order; emit must
// not call back into the handler.
type MouseHandler struct {
	mu   sync.Mutex
	cfg  MouseConfig
	emit func(*protocol.InputEvent)
	now  func() time.Time

	hasEmitted   bool
	lastX, lastY float64
	pressed      map[int]bool
	history      []positionSample

	lastClickAt     time.Time
	lastClickX      float64
	lastClickY      float64
	lastClickButton int
	clickCount      int
}

// NewMouseHandler creates a mouse handler that emits canonical events
// through emit.
func NewMouseHandler(cfg MouseConfig, emit func(*protocol.InputEvent)) *MouseHandler {
	return &MouseHandler{
		cfg:     cfg,
		emit:    emit,
		now:     time.Now,
		pressed: make(map[int]bool),
	}
}

// SetNowFunc overrides the clock. Tests only.
func (h *MouseHandler) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// HandleMove processes a raw pointer movement. Movement below the
// configured threshold since the last emitted position is dropped to
// bound event volume.
func (h *MouseHandler) HandleMove(e PointerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recordPosition(e.X, e.Y)

	if h.hasEmitted {
		dx := e.X - h.lastX
		dy := e.Y - h.lastY
		if math.Hypot(dx, dy) < h.cfg.MovementThreshold {
			return
		}
	}

	x, y := e.X, e.Y
	if h.hasEmitted && h.cfg.SmoothingFactor > 0 {
		f := h.cfg.SmoothingFactor
		x = h.lastX*f + e.X*(1-f)
		y = h.lastY*f + e.Y*(1-f)
	}

	h.hasEmitted = true
	h.lastX, h.lastY = x, y
	h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
		Action: protocol.MouseMove,
		X:      x,
		Y:      y,
	}))
}

// HandleDown processes a raw button press.
func (h *MouseHandler) HandleDown(e PointerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pressed[e.Button] = true
	h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
		Action: protocol.MouseDown,
		X:      e.X,
		Y:      e.Y,
		Button: e.Button,
	}))
}

// HandleUp processes a raw button release. A release near the previous
// click within the double-click window bumps the click count, attached
// to the emitted event as metadata.
func (h *MouseHandler) HandleUp(e PointerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.pressed, e.Button)

	now := h.now()
	sameSpot := math.Hypot(e.X-h.lastClickX, e.Y-h.lastClickY) <= h.cfg.DoubleClickSlop
	inWindow := !h.lastClickAt.IsZero() && now.Sub(h.lastClickAt) <= h.cfg.DoubleClickWindow
	if sameSpot && inWindow && e.Button == h.lastClickButton {
		h.clickCount++
	} else {
		h.clickCount = 1
	}
	h.lastClickAt = now
	h.lastClickX, h.lastClickY = e.X, e.Y
	h.lastClickButton = e.Button

	h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
		Action:     protocol.MouseUp,
		X:          e.X,
		Y:          e.Y,
		Button:     e.Button,
		ClickCount: h.clickCount,
	}))
}

// HandleWheel normalizes scroll deltas across delta modes to pixel
// units. Deltas below the noise floor are dropped entirely so trackpad
// jitter never reaches the remote session.
func (h *MouseHandler) HandleWheel(e WheelEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dx := normalizeDelta(e.DeltaX, e.DeltaMode)
	dy := normalizeDelta(e.DeltaY, e.DeltaMode)
	if math.Abs(dx) < h.cfg.ScrollNoiseFloor {
		dx = 0
	}
	if math.Abs(dy) < h.cfg.ScrollNoiseFloor {
		dy = 0
	}
	if dx == 0 && dy == 0 {
		return
	}

	h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
		Action: protocol.MouseScroll,
		X:      h.lastX,
		Y:      h.lastY,
		DeltaX: dx,
		DeltaY: dy,
	}))
}

// HandleContextMenu emits a synthetic right-button context event. The
// native menu is always suppressed by the host UI; the remote desktop
// supplies its own.
func (h *MouseHandler) HandleContextMenu(e PointerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
		Action: protocol.MouseContext,
		X:      e.X,
		Y:      e.Y,
		Button: protocol.ButtonRight,
	}))
}

// Velocity returns the pointer velocity in px/s derived from the two
// most recent buffered positions.
func (h *MouseHandler) Velocity() (vx, vy float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.history)
	if n < 2 {
		return 0, 0
	}
	a, b := h.history[n-2], h.history[n-1]
	dt := b.at.Sub(a.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}
	return (b.x - a.x) / dt, (b.y - a.y) / dt
}

// PredictNext extrapolates the pointer position one frame ahead from
// the current velocity. Advisory only; returns false when prediction
// is disabled or there is not enough history.
func (h *MouseHandler) PredictNext() (x, y float64, ok bool) {
	if !h.cfg.EnablePrediction {
		return 0, 0, false
	}

	vx, vy := h.Velocity()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.history) == 0 {
		return 0, 0, false
	}
	const horizon = 16e-3 // one 60Hz frame
	last := h.history[len(h.history)-1]
	return last.x + vx*horizon, last.y + vy*horizon, true
}

// Reset clears all tracked state.
func (h *MouseHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hasEmitted = false
	h.pressed = make(map[int]bool)
	h.history = nil
	h.clickCount = 0
	h.lastClickAt = time.Time{}
}

func (h *MouseHandler) recordPosition(x, y float64) {
	h.history = append(h.history, positionSample{x: x, y: y, at: h.now()})
	if len(h.history) > movementHistorySize {
		h.history = h.history[len(h.history)-movementHistorySize:]
	}
}

func normalizeDelta(delta float64, mode DeltaMode) float64 {
	switch mode {
	case DeltaLine:
		return delta * wheelLinePixels
	case DeltaPage:
		return delta * wheelPagePixels
	default:
		return delta
	}
}
