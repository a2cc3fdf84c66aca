package protocol

// ConnectionState is the authoritative transport state-machine variable.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// Actor identifies who is driving the remote session.
type Actor string

const (
	ActorNone       Actor = "none"
	ActorAgent      Actor = "agent"
	ActorSupervisor Actor = "supervisor"
)

// QualitySettings are the tunable wire parameters. Quality and
// Compression run 0 (best fidelity / least compressed) to 9. A preset
// change always replaces all three fields together.
type QualitySettings struct {
	Quality     int     `cbor:"1,keyasint"`
	Compression int     `cbor:"2,keyasint"`
	ScaleLevel  float64 `cbor:"3,keyasint"`
}

const (
	QualityMin     = 0
	QualityMax     = 9
	CompressionMin = 0
	CompressionMax = 9
)

// Quality presets selectable by the user.
var (
	PresetHigh     = QualitySettings{Quality: 2, Compression: 2, ScaleLevel: 1.0}
	PresetBalanced = QualitySettings{Quality: 5, Compression: 5, ScaleLevel: 1.0}
	PresetLow      = QualitySettings{Quality: 8, Compression: 8, ScaleLevel: 0.75}
)

// PresetByName resolves a configured preset name, defaulting to
// balanced for anything unrecognized.
func PresetByName(name string) QualitySettings {
	switch name {
	case "high":
		return PresetHigh
	case "low":
		return PresetLow
	default:
		return PresetBalanced
	}
}

// ConnectionMetrics is a rolling telemetry snapshot. Each recomputation
// replaces the full snapshot; it is never partially updated.
type ConnectionMetrics struct {
	RoundTripTimeMs float64
	BandwidthKbps   float64
	FrameRate       float64
	DroppedFrames   int64
	TotalBytes      int64
}

// ConnectionQuality is an advisory classification derived from latency.
type ConnectionQuality string

const (
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityPoor      ConnectionQuality = "poor"
	QualityTerrible  ConnectionQuality = "terrible"
)

// WorkspaceSession is the live-connection aggregate owned by the
// transport session. Other components receive copies, never the owned
// value.
type WorkspaceSession struct {
	ID                string
	ConnectionState   ConnectionState
	ControlOwner      Actor
	HasLocalControl   bool
	LatencyMs         float64
	ConnectionQuality ConnectionQuality
	LastActivity      int64
}
