package input

import (
	"math"
	"sync"
	"time"

	"github.com/deskbridge/deskbridge/internal/protocol"
)

// TouchConfig tunes gesture classification.
type TouchConfig struct {
	LongPressDelay  time.Duration
	DoubleTapWindow time.Duration
	DoubleTapSlop   float64 // px between paired taps
	TapSlop         float64 // px of allowed drift for a tap
	SwipeThreshold  float64 // px of net movement for a swipe
	PinchNoiseFloor float64 // px of separation change before a pinch
	HistoryHorizon  time.Duration
}

// DefaultTouchConfig returns the stock tuning.
func DefaultTouchConfig() TouchConfig {
	return TouchConfig{
		LongPressDelay:  550 * time.Millisecond,
		DoubleTapWindow: 300 * time.Millisecond,
		DoubleTapSlop:   30,
		TapSlop:         10,
		SwipeThreshold:  50,
		PinchNoiseFloor: 8,
		HistoryHorizon:  5 * time.Second,
	}
}

type activeTouch struct {
	id        int
	x, y      float64
	startX    float64
	startY    float64
	startTime time.Time
	moved     bool // drifted beyond tap slop
}

type touchSample struct {
	x, y float64
	at   time.Time
}

// TouchHandler is the stateful touch-event processor: single and
// multi-touch tracking, gesture classification, and translation of
// gestures into equivalent mouse primitives for the remote side.
// Events are emitted while the handler lock is held so wire order
// matches state order; emit must not call back into the handler.
type TouchHandler struct {
	mu   sync.Mutex
	cfg  TouchConfig
	emit func(*protocol.InputEvent)
	now  func() time.Time

	points  map[int]*activeTouch
	history []touchSample

	longPressTimer *time.Timer
	longPressID    int
	longPressFired bool

	lastTapAt time.Time
	lastTapX  float64
	lastTapY  float64

	pinchStartDist float64
	pinchActive    bool
	scrollLastY    float64
}

// NewTouchHandler creates a touch handler that emits canonical events
// through emit.
func NewTouchHandler(cfg TouchConfig, emit func(*protocol.InputEvent)) *TouchHandler {
	return &TouchHandler{
		cfg:    cfg,
		emit:   emit,
		now:    time.Now,
		points: make(map[int]*activeTouch),
	}
}

// SetNowFunc overrides the clock. Tests only.
func (h *TouchHandler) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// HandleTouchStart registers new contacts and classifies the gesture
// phase: one contact arms the long-press timer, two start pinch/scroll
// tracking, three or more emit a structural multi-touch event.
func (h *TouchHandler) HandleTouchStart(touches []Touch) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for _, t := range touches {
		if _, exists := h.points[t.ID]; exists {
			continue
		}
		h.points[t.ID] = &activeTouch{
			id: t.ID, x: t.X, y: t.Y,
			startX: t.X, startY: t.Y, startTime: now,
		}
		h.recordSample(t.X, t.Y, now)
	}

	switch len(h.points) {
	case 1:
		for id := range h.points {
			h.armLongPress(id)
		}
	case 2:
		h.cancelLongPress()
		a, b := h.twoPoints()
		h.pinchStartDist = distance(a.x, a.y, b.x, b.y)
		h.pinchActive = false
		h.scrollLastY = (a.y + b.y) / 2
	default:
		h.cancelLongPress()
		h.emit(protocol.NewTouchEvent(&protocol.TouchEvent{
			Action:  protocol.TouchMulti,
			Touches: h.snapshotPoints(),
		}))
	}
	h.purgeHistory(now)
}

// HandleTouchMove updates contact positions and emits drag, pinch or
// two-finger-scroll events as the gesture develops.
func (h *TouchHandler) HandleTouchMove(touches []Touch) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for _, t := range touches {
		p, ok := h.points[t.ID]
		if !ok {
			continue
		}
		p.x, p.y = t.X, t.Y
		if !p.moved && distance(t.X, t.Y, p.startX, p.startY) > h.cfg.TapSlop {
			p.moved = true
			if t.ID == h.longPressID {
				h.cancelLongPress()
			}
		}
		h.recordSample(t.X, t.Y, now)
	}

	switch len(h.points) {
	case 1:
		for _, p := range h.points {
			if p.moved && !h.longPressFired {
				// Sub-swipe movement forwards as a plain drag.
				h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
					Action: protocol.MouseMove,
					X:      p.x,
					Y:      p.y,
				}))
			}
		}
	case 2:
		a, b := h.twoPoints()
		dist := distance(a.x, a.y, b.x, b.y)
		if math.Abs(dist-h.pinchStartDist) > h.cfg.PinchNoiseFloor {
			// Separation changed: this is a pinch, and stays one.
			h.pinchActive = true
			h.emit(protocol.NewTouchEvent(&protocol.TouchEvent{
				Action:   protocol.TouchPinch,
				Scale:    dist / h.pinchStartDist,
				Distance: dist,
			}))
		} else if !h.pinchActive {
			// Stable separation, shared vertical travel: two-finger scroll.
			midY := (a.y + b.y) / 2
			delta := midY - h.scrollLastY
			if math.Abs(delta) >= 1 {
				h.scrollLastY = midY
				h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
					Action: protocol.MouseScroll,
					X:      (a.x + b.x) / 2,
					Y:      midY,
					DeltaY: delta,
				}))
			}
		}
	}
	h.purgeHistory(now)
}

// HandleTouchEnd removes ended contacts and resolves the final gesture:
// tap, double-tap, or swipe. A long-press that already fired consumes
// the release silently.
func (h *TouchHandler) HandleTouchEnd(touches []Touch) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for _, t := range touches {
		p, ok := h.points[t.ID]
		if !ok {
			continue
		}
		delete(h.points, t.ID)

		if t.ID == h.longPressID {
			fired := h.longPressFired
			h.cancelLongPress()
			if fired {
				continue
			}
		}

		if !p.moved {
			h.resolveTap(p, now)
			continue
		}

		dx := p.x - p.startX
		dy := p.y - p.startY
		dist := math.Hypot(dx, dy)
		if dist > h.cfg.SwipeThreshold {
			h.emit(protocol.NewTouchEvent(&protocol.TouchEvent{
				Action:    protocol.TouchSwipe,
				X:         p.x,
				Y:         p.y,
				Direction: swipeDirection(dx, dy),
				Distance:  dist,
			}))
		}
	}

	if len(h.points) != 2 {
		h.pinchActive = false
	}
	h.purgeHistory(now)
}

// HandleTouchCancel clears all touch state. Consumers must treat it as
// all touches released with no gesture.
func (h *TouchHandler) HandleTouchCancel() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancelLongPress()
	h.points = make(map[int]*activeTouch)
	h.pinchActive = false
	h.emit(protocol.NewTouchEvent(&protocol.TouchEvent{Action: protocol.TouchCancel}))
}

// Clear cancels timers and drops all state. Called on teardown.
func (h *TouchHandler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLongPress()
	h.points = make(map[int]*activeTouch)
	h.history = nil
	h.pinchActive = false
	h.lastTapAt = time.Time{}
}

// ActiveTouches returns the number of currently tracked contacts.
func (h *TouchHandler) ActiveTouches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.points)
}

// resolveTap classifies a clean release as tap or double-tap and
// synthesizes the mouse click pair the remote side expects. Caller
// holds the lock.
func (h *TouchHandler) resolveTap(p *activeTouch, now time.Time) {
	clickCount := 1
	action := protocol.TouchTap
	if !h.lastTapAt.IsZero() &&
		now.Sub(h.lastTapAt) <= h.cfg.DoubleTapWindow &&
		distance(p.x, p.y, h.lastTapX, h.lastTapY) <= h.cfg.DoubleTapSlop {
		action = protocol.TouchDoubleTap
		clickCount = 2
		h.lastTapAt = time.Time{} // a triple tap starts a fresh pair
	} else {
		h.lastTapAt = now
		h.lastTapX, h.lastTapY = p.x, p.y
	}

	h.emit(protocol.NewTouchEvent(&protocol.TouchEvent{
		Action: action,
		X:      p.x,
		Y:      p.y,
	}))
	h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
		Action: protocol.MouseDown,
		X:      p.x,
		Y:      p.y,
		Button: protocol.ButtonLeft,
	}))
	h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
		Action:     protocol.MouseUp,
		X:          p.x,
		Y:          p.y,
		Button:     protocol.ButtonLeft,
		ClickCount: clickCount,
	}))
}

// armLongPress starts the long-press timer for a contact. Caller holds
// the lock.
func (h *TouchHandler) armLongPress(id int) {
	h.cancelLongPress()
	h.longPressID = id
	h.longPressTimer = time.AfterFunc(h.cfg.LongPressDelay, func() {
		h.fireLongPress(id)
	})
}

// fireLongPress emits long-press plus the synthetic right-click that
// substitutes for it on touch devices. The contact is re-checked under
// the lock: it may have ended or moved since the timer was scheduled.
func (h *TouchHandler) fireLongPress(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.points[id]
	if !ok || p.moved || id != h.longPressID {
		return
	}
	h.longPressFired = true
	h.emit(protocol.NewTouchEvent(&protocol.TouchEvent{
		Action: protocol.TouchLongPress,
		X:      p.x,
		Y:      p.y,
	}))
	h.emit(protocol.NewMouseEvent(&protocol.MouseEvent{
		Action: protocol.MouseContext,
		X:      p.x,
		Y:      p.y,
		Button: protocol.ButtonRight,
	}))
}

// cancelLongPress stops the pending long-press timer. Caller holds the
// lock.
func (h *TouchHandler) cancelLongPress() {
	if h.longPressTimer != nil {
		h.longPressTimer.Stop()
		h.longPressTimer = nil
	}
	h.longPressID = -1
	h.longPressFired = false
}

// twoPoints returns the two active contacts in id order. Caller holds
// the lock and guarantees len(points) == 2.
func (h *TouchHandler) twoPoints() (*activeTouch, *activeTouch) {
	var pts []*activeTouch
	for _, p := range h.points {
		pts = append(pts, p)
	}
	if pts[0].id > pts[1].id {
		pts[0], pts[1] = pts[1], pts[0]
	}
	return pts[0], pts[1]
}

func (h *TouchHandler) snapshotPoints() []protocol.TouchPoint {
	out := make([]protocol.TouchPoint, 0, len(h.points))
	for _, p := range h.points {
		out = append(out, protocol.TouchPoint{
			ID: p.id, X: p.x, Y: p.y, StartX: p.startX, StartY: p.startY,
		})
	}
	return out
}

func (h *TouchHandler) recordSample(x, y float64, at time.Time) {
	h.history = append(h.history, touchSample{x: x, y: y, at: at})
}

// purgeHistory drops samples older than the horizon to bound memory.
// Caller holds the lock.
func (h *TouchHandler) purgeHistory(now time.Time) {
	cutoff := now.Add(-h.cfg.HistoryHorizon)
	i := 0
	for ; i < len(h.history); i++ {
		if h.history[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		h.history = h.history[i:]
	}
}

func swipeDirection(dx, dy float64) string {
	if math.Abs(dx) >= math.Abs(dy) {
		if dx > 0 {
			return "right"
		}
		return "left"
	}
	if dy > 0 {
		return "down"
	}
	return "up"
}

func distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}
