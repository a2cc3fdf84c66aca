package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deskbridge/deskbridge/internal/protocol"
)

func newTestTouch(cfg TouchConfig) (*TouchHandler, *eventRecorder, *fakeClock) {
	rec := &eventRecorder{}
	clock := newFakeClock()
	h := NewTouchHandler(cfg, rec.emit)
	h.SetNowFunc(clock.Now)
	return h, rec, clock
}

func touchActions(rec *eventRecorder) []string {
	var out []string
	for _, ev := range rec.all() {
		if ev.Touch != nil {
			out = append(out, ev.Touch.Action)
		}
	}
	return out
}

func TestTouchHandlerTap(t *testing.T) {
	t.Run("clean tap synthesizes a left click", func(t *testing.T) {
		h, rec, clock := newTestTouch(DefaultTouchConfig())

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
		clock.Advance(50 * time.Millisecond)
		h.HandleTouchEnd([]Touch{{ID: 1, X: 100, Y: 100}})

		assert.Equal(t, []string{protocol.TouchTap}, touchActions(rec))
		actions := rec.mouseActions()
		assert.Equal(t, []string{protocol.MouseDown, protocol.MouseUp}, actions)
		assert.Equal(t, protocol.ButtonLeft, rec.events[1].Mouse.Button)
		assert.Equal(t, 1, rec.events[2].Mouse.ClickCount)
	})

	t.Run("second quick tap is a double tap", func(t *testing.T) {
		h, rec, clock := newTestTouch(DefaultTouchConfig())

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
		h.HandleTouchEnd([]Touch{{ID: 1, X: 100, Y: 100}})
		clock.Advance(150 * time.Millisecond)
		h.HandleTouchStart([]Touch{{ID: 2, X: 105, Y: 102}})
		h.HandleTouchEnd([]Touch{{ID: 2, X: 105, Y: 102}})

		assert.Equal(t, []string{protocol.TouchTap, protocol.TouchDoubleTap}, touchActions(rec))
		last := rec.events[len(rec.events)-1]
		assert.Equal(t, 2, last.Mouse.ClickCount)
	})

	t.Run("slow second tap stays a single tap", func(t *testing.T) {
		h, rec, clock := newTestTouch(DefaultTouchConfig())

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
		h.HandleTouchEnd([]Touch{{ID: 1, X: 100, Y: 100}})
		clock.Advance(time.Second)
		h.HandleTouchStart([]Touch{{ID: 2, X: 100, Y: 100}})
		h.HandleTouchEnd([]Touch{{ID: 2, X: 100, Y: 100}})

		assert.Equal(t, []string{protocol.TouchTap, protocol.TouchTap}, touchActions(rec))
	})
}

func TestTouchHandlerDrag(t *testing.T) {
	h, rec, _ := newTestTouch(DefaultTouchConfig())

	h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
	h.HandleTouchMove([]Touch{{ID: 1, X: 120, Y: 100}})
	h.HandleTouchMove([]Touch{{ID: 1, X: 140, Y: 100}})

	actions := rec.mouseActions()
	assert.Equal(t, []string{protocol.MouseMove, protocol.MouseMove}, actions)
	assert.Equal(t, 140.0, rec.events[1].Mouse.X)
}

func TestTouchHandlerSwipe(t *testing.T) {
	tests := []struct {
		name          string
		endX, endY    float64
		wantDirection string
	}{
		{name: "right", endX: 200, endY: 105, wantDirection: "right"},
		{name: "left", endX: 20, endY: 100, wantDirection: "left"},
		{name: "down", endX: 105, endY: 200, wantDirection: "down"},
		{name: "up", endX: 100, endY: 20, wantDirection: "up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, rec, _ := newTestTouch(DefaultTouchConfig())

			h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
			h.HandleTouchMove([]Touch{{ID: 1, X: tt.endX, Y: tt.endY}})
			h.HandleTouchEnd([]Touch{{ID: 1, X: tt.endX, Y: tt.endY}})

			actions := touchActions(rec)
			assert.Equal(t, []string{protocol.TouchSwipe}, actions)
			for _, ev := range rec.all() {
				if ev.Touch != nil {
					assert.Equal(t, tt.wantDirection, ev.Touch.Direction)
				}
			}
		})
	}

	t.Run("sub-threshold movement is neither tap nor swipe", func(t *testing.T) {
		h, rec, _ := newTestTouch(DefaultTouchConfig())

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
		h.HandleTouchMove([]Touch{{ID: 1, X: 120, Y: 100}}) // beyond tap slop, below swipe
		h.HandleTouchEnd([]Touch{{ID: 1, X: 120, Y: 100}})

		assert.Empty(t, touchActions(rec))
	})
}

func TestTouchHandlerLongPress(t *testing.T) {
	cfg := DefaultTouchConfig()
	cfg.LongPressDelay = 30 * time.Millisecond

	t.Run("stationary hold fires long press and right click", func(t *testing.T) {
		h, rec, _ := newTestTouch(cfg)

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
		time.Sleep(80 * time.Millisecond)
		h.HandleTouchEnd([]Touch{{ID: 1, X: 100, Y: 100}})

		assert.Equal(t, []string{protocol.TouchLongPress}, touchActions(rec))
		actions := rec.mouseActions()
		assert.Equal(t, []string{protocol.MouseContext}, actions)
		// The release after a fired long press synthesizes no tap.
	})

	t.Run("movement cancels the pending long press", func(t *testing.T) {
		h, rec, _ := newTestTouch(cfg)

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
		h.HandleTouchMove([]Touch{{ID: 1, X: 130, Y: 100}})
		time.Sleep(80 * time.Millisecond)

		assert.Empty(t, touchActions(rec))
	})

	t.Run("early release cancels the pending long press", func(t *testing.T) {
		h, rec, _ := newTestTouch(cfg)

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
		h.HandleTouchEnd([]Touch{{ID: 1, X: 100, Y: 100}})
		time.Sleep(80 * time.Millisecond)

		assert.Equal(t, []string{protocol.TouchTap}, touchActions(rec))
	})
}

func TestTouchHandlerPinch(t *testing.T) {
	t.Run("separation change emits pinch with scale", func(t *testing.T) {
		h, rec, _ := newTestTouch(DefaultTouchConfig())

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 200}, {ID: 2, X: 200, Y: 200}})
		h.HandleTouchMove([]Touch{{ID: 1, X: 90, Y: 200}, {ID: 2, X: 210, Y: 200}})

		actions := touchActions(rec)
		assert.Equal(t, []string{protocol.TouchPinch}, actions)
		ev := rec.all()[0]
		assert.InDelta(t, 1.2, ev.Touch.Scale, 1e-9)
		assert.InDelta(t, 120, ev.Touch.Distance, 1e-9)
	})

	t.Run("pinch in scales below one", func(t *testing.T) {
		h, rec, _ := newTestTouch(DefaultTouchConfig())

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 200}, {ID: 2, X: 200, Y: 200}})
		h.HandleTouchMove([]Touch{{ID: 1, X: 120, Y: 200}, {ID: 2, X: 180, Y: 200}})

		ev := rec.all()[0]
		assert.Less(t, ev.Touch.Scale, 1.0)
	})

	t.Run("a pinch never degrades into a scroll", func(t *testing.T) {
		h, rec, _ := newTestTouch(DefaultTouchConfig())

		h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 200}, {ID: 2, X: 200, Y: 200}})
		h.HandleTouchMove([]Touch{{ID: 1, X: 80, Y: 200}, {ID: 2, X: 220, Y: 200}})
		// Both fingers travel together; separation is back near start.
		h.HandleTouchMove([]Touch{{ID: 1, X: 100, Y: 250}, {ID: 2, X: 200, Y: 250}})

		for _, ev := range rec.all() {
			assert.Nil(t, ev.Mouse, "pinch gesture must not emit scroll events")
		}
	})
}

func TestTouchHandlerTwoFingerScroll(t *testing.T) {
	h, rec, _ := newTestTouch(DefaultTouchConfig())

	h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 200}, {ID: 2, X: 200, Y: 200}})
	// Same separation, both fingers travel down together.
	h.HandleTouchMove([]Touch{{ID: 1, X: 100, Y: 230}, {ID: 2, X: 200, Y: 230}})

	assert.Empty(t, touchActions(rec))
	actions := rec.mouseActions()
	assert.Equal(t, []string{protocol.MouseScroll}, actions)
	assert.Equal(t, 30.0, rec.events[0].Mouse.DeltaY)
}

func TestTouchHandlerMultiTouch(t *testing.T) {
	h, rec, _ := newTestTouch(DefaultTouchConfig())

	h.HandleTouchStart([]Touch{
		{ID: 1, X: 100, Y: 100},
		{ID: 2, X: 200, Y: 100},
		{ID: 3, X: 150, Y: 200},
	})

	assert.Equal(t, []string{protocol.TouchMulti}, touchActions(rec))
	assert.Len(t, rec.events[0].Touch.Touches, 3)
}

func TestTouchHandlerCancel(t *testing.T) {
	h, rec, _ := newTestTouch(DefaultTouchConfig())

	h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
	h.HandleTouchCancel()
	// The cancelled contact produces no tap on a stale end event.
	h.HandleTouchEnd([]Touch{{ID: 1, X: 100, Y: 100}})

	assert.Equal(t, []string{protocol.TouchCancel}, touchActions(rec))
	assert.Equal(t, 0, h.ActiveTouches())
}

func TestTouchHandlerClear(t *testing.T) {
	cfg := DefaultTouchConfig()
	cfg.LongPressDelay = 30 * time.Millisecond
	h, rec, _ := newTestTouch(cfg)

	h.HandleTouchStart([]Touch{{ID: 1, X: 100, Y: 100}})
	h.Clear()
	time.Sleep(80 * time.Millisecond)

	assert.Empty(t, rec.all())
	assert.Equal(t, 0, h.ActiveTouches())
}
