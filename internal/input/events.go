// Package input implements the event-capture side of the viewer: the
// per-modality handlers that turn raw host-UI events into canonical
// protocol events, the validator that gates them, and the manager that
// forwards them to the transport.
package input

// PointerEvent is a raw mouse event as delivered by the embedding host
// UI, positions in viewer-surface coordinates.
type PointerEvent struct {
	X      float64
	Y      float64
	Button int
}

// DeltaMode mirrors the three standard wheel delta modes.
type DeltaMode int

const (
	DeltaPixel DeltaMode = 0
	DeltaLine  DeltaMode = 1
	DeltaPage  DeltaMode = 2
)

// WheelEvent is a raw scroll event.
type WheelEvent struct {
	DeltaX    float64
	DeltaY    float64
	DeltaMode DeltaMode
}

// KeyLocation distinguishes left/right variants of modifier keys.
type KeyLocation int

const (
	LocationStandard KeyLocation = 0
	LocationLeft     KeyLocation = 1
	LocationRight    KeyLocation = 2
	LocationNumpad   KeyLocation = 3
)

// KeyEvent is a raw keyboard event. Modifier flags come from the
// triggering event and are the source of truth; the handler never
// tracks modifier state independently.
type KeyEvent struct {
	Key      string
	Code     string
	Location KeyLocation
	Shift    bool
	Ctrl     bool
	Alt      bool
	Meta     bool
}

// Touch is one raw contact point in a touch event.
type Touch struct {
	ID int
	X  float64
	Y  float64
}
