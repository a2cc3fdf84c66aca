package input

import (
	"sync"
)

// FocusManager arbitrates whether the remote-viewer surface currently
// owns input. Handlers stay focus-agnostic; gating is centralized here
// and applied by the manager before forwarding.
type FocusManager struct {
	mu          sync.Mutex
	focused     bool
	onFocusLost []func()
}

// NewFocusManager starts unfocused.
func NewFocusManager() *FocusManager {
	return &FocusManager{}
}

// SetFocused records a focus transition. Losing focus runs the
// registered callbacks (stuck-key cleanup lives there).
func (f *FocusManager) SetFocused(focused bool) {
	f.mu.Lock()
	lost := f.focused && !focused
	f.focused = focused
	callbacks := f.onFocusLost
	f.mu.Unlock()

	if lost {
		for _, cb := range callbacks {
			cb()
		}
	}
}

// Focused reports whether the viewer surface owns input.
func (f *FocusManager) Focused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.focused
}

// OnFocusLost registers a callback to run when focus leaves the viewer.
func (f *FocusManager) OnFocusLost(cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFocusLost = append(f.onFocusLost, cb)
}
