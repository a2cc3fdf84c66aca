// Package session owns the live connection to the remote framebuffer
// server: the connection state machine, reconnection policy, telemetry
// collection and the adaptive quality loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/protocol"
)

var (
	// ErrNotConnected is returned when sending input without a live
	// connection.
	ErrNotConnected = errors.New("session is not connected")
	// ErrAuthFailed marks credential rejection by the transport.
	// Terminal for the session; never auto-retried.
	ErrAuthFailed = errors.New("authentication failed")
)

// TransportStats is the raw counter snapshot a transport exposes.
type TransportStats struct {
	BytesReceived  int64
	FramesReceived int64
	DroppedFrames  int64
}

// Transport is the underlying connection to the framebuffer server.
// Implementations must be safe for concurrent use.
type Transport interface {
	Connect(ctx context.Context) error
	SendInput(event *protocol.InputEvent) error
	SetQuality(settings protocol.QualitySettings) error
	Ping(ctx context.Context) (time.Duration, error)
	Stats() TransportStats
	OnDisconnect(cb func(error))
	Close() error
}

// Config tunes the session.
type Config struct {
	ReconnectDelay  time.Duration // fixed backoff between attempts
	MaxReconnects   int           // consecutive failures before error state
	TelemetryTick   time.Duration
	LatencyInterval time.Duration // probe cadence, multiple of the tick
	Targets         Targets
	InitialQuality  protocol.QualitySettings
	AdaptiveQuality bool
}

// DefaultConfig returns the stock session tuning.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:  2500 * time.Millisecond,
		MaxReconnects:   10,
		TelemetryTick:   time.Second,
		LatencyInterval: 5 * time.Second,
		Targets:         Targets{FrameRate: 30, BandwidthKbps: 8000},
		InitialQuality:  protocol.PresetBalanced,
		AdaptiveQuality: true,
	}
}

// Session is the transport session state machine. It exclusively owns
// the WorkspaceSession aggregate; everything else sees snapshots.
type Session struct {
	mu        sync.Mutex
	cfg       Config
	transport Transport

	id          string
	state       protocol.ConnectionState
	stateReason string
	quality     protocol.QualitySettings
	metrics     protocol.ConnectionMetrics
	lastStats   TransportStats
	lastLatency float64
	lastActive  time.Time

	controlOwner func() protocol.Actor // injected, read-only view
	localActor   protocol.Actor

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	reconnects int

	onStateChange func(protocol.ConnectionState, string)
	onMetrics     func(protocol.ConnectionMetrics)
	onQuality     func(protocol.QualitySettings)
}

// New creates a disconnected session over the given transport.
// controlOwner supplies the arbiter's current owner for snapshots.
func New(cfg Config, transport Transport, localActor protocol.Actor, controlOwner func() protocol.Actor) *Session {
	s := &Session{
		cfg:          cfg,
		transport:    transport,
		id:           uuid.NewString(),
		state:        protocol.StateDisconnected,
		quality:      cfg.InitialQuality,
		controlOwner: controlOwner,
		localActor:   localActor,
	}
	transport.OnDisconnect(s.handleDisconnect)
	return s
}

// OnStateChange registers the state-transition callback.
func (s *Session) OnStateChange(cb func(protocol.ConnectionState, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = cb
}

// OnMetrics registers the telemetry snapshot callback.
func (s *Session) OnMetrics(cb func(protocol.ConnectionMetrics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMetrics = cb
}

// OnQuality registers the quality-settings callback.
func (s *Session) OnQuality(cb func(protocol.QualitySettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onQuality = cb
}

// Connect establishes the connection and starts telemetry. A transient
// failure enters the reconnect path automatically; an auth failure
// lands in the error state without retry, because retrying the same
// bad credential cannot succeed. An explicit connect supersedes any
// in-flight reconnect loop.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == protocol.StateConnected || s.state == protocol.StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("already %s", s.state)
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	// Goroutines on the previous context must drain before a new
	// context is installed, or they would outlive every cancel.
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.reconnects = 0
	s.mu.Unlock()

	return s.connect(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	s.setState(protocol.StateConnecting, "")

	if err := s.transport.Connect(ctx); err != nil {
		if errors.Is(err, ErrAuthFailed) {
			s.setState(protocol.StateError, "authentication failed")
			return fmt.Errorf("failed to connect: %w", err)
		}
		logger.Warnf("Connect failed: %v", err)
		s.mu.Lock()
		loopCtx := s.ctx
		s.mu.Unlock()
		s.wg.Add(1)
		go s.reconnectLoop(loopCtx)
		return fmt.Errorf("failed to connect: %w", err)
	}

	s.mu.Lock()
	s.reconnects = 0
	s.lastStats = TransportStats{}
	s.lastActive = time.Now()
	ctxLoop := s.ctx
	s.mu.Unlock()

	s.setState(protocol.StateConnected, "")
	if err := s.transport.SetQuality(s.Quality()); err != nil {
		logger.Warnf("Failed to apply initial quality settings: %v", err)
	}

	s.wg.Add(1)
	go s.telemetryLoop(ctxLoop)

	logger.Infof("Session %s connected", s.id)
	return nil
}

// Disconnect tears the session down. Idempotent: a second call is a
// no-op that leaves the state at disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == protocol.StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	if err := s.transport.Close(); err != nil {
		logger.Errorf("Failed to close transport: %v", err)
	}
	s.wg.Wait()
	s.setState(protocol.StateDisconnected, "")
	logger.Infof("Session %s disconnected", s.id)
	return nil
}

// SendInput forwards one canonical event to the server.
func (s *Session) SendInput(event *protocol.InputEvent) error {
	s.mu.Lock()
	state := s.state
	s.lastActive = time.Now()
	s.mu.Unlock()

	if state != protocol.StateConnected {
		return ErrNotConnected
	}
	return s.transport.SendInput(event)
}

// State returns the current connection state.
func (s *Session) State() protocol.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Quality returns the current quality settings.
func (s *Session) Quality() protocol.QualitySettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// SetQualityPreset applies a named preset. All three fields update
// together.
func (s *Session) SetQualityPreset(name string) error {
	settings := protocol.PresetByName(name)
	s.mu.Lock()
	s.quality = settings
	cb := s.onQuality
	s.mu.Unlock()

	if cb != nil {
		cb(settings)
	}
	return s.transport.SetQuality(settings)
}

// Metrics returns the latest telemetry snapshot.
func (s *Session) Metrics() protocol.ConnectionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Snapshot assembles the read-only WorkspaceSession view handed to
// other components.
func (s *Session) Snapshot() protocol.WorkspaceSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := protocol.ActorNone
	if s.controlOwner != nil {
		owner = s.controlOwner()
	}
	return protocol.WorkspaceSession{
		ID:                s.id,
		ConnectionState:   s.state,
		ControlOwner:      owner,
		HasLocalControl:   owner == s.localActor,
		LatencyMs:         s.lastLatency,
		ConnectionQuality: ClassifyLatency(s.lastLatency),
		LastActivity:      s.lastActive.UnixNano(),
	}
}

// handleDisconnect reacts to an unexpected transport drop. While the
// viewer is open the session reconnects automatically with a fixed
// backoff; the user sees "reconnecting", not an error, until the
// attempt cap is exhausted.
func (s *Session) handleDisconnect(cause error) {
	s.mu.Lock()
	if s.state != protocol.StateConnected || s.ctx == nil || s.ctx.Err() != nil {
		// Deliberate teardown or already handling a failure.
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	if cause != nil {
		logger.Warnf("Connection lost: %v", cause)
	} else {
		logger.Warn("Connection lost")
	}

	s.wg.Add(1)
	go s.reconnectLoop(ctx)
}

// reconnectLoop retries connect at the fixed backoff until it succeeds,
// the cap is exhausted, or the session is torn down.
func (s *Session) reconnectLoop(ctx context.Context) {
	defer s.wg.Done()

	s.setState(protocol.StateReconnecting, "")

	for {
		s.mu.Lock()
		s.reconnects++
		attempt := s.reconnects
		maxAttempts := s.cfg.MaxReconnects
		s.mu.Unlock()

		if maxAttempts > 0 && attempt > maxAttempts {
			s.setState(protocol.StateError,
				fmt.Sprintf("gave up after %d reconnect attempts", maxAttempts))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}

		logger.Infof("Reconnect attempt %d", attempt)
		if err := s.transport.Connect(ctx); err != nil {
			if errors.Is(err, ErrAuthFailed) {
				s.setState(protocol.StateError, "authentication failed")
				return
			}
			logger.Warnf("Reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		s.mu.Lock()
		s.reconnects = 0
		s.lastStats = TransportStats{}
		s.mu.Unlock()

		s.setState(protocol.StateConnected, "")
		if err := s.transport.SetQuality(s.Quality()); err != nil {
			logger.Warnf("Failed to reapply quality settings: %v", err)
		}

		s.wg.Add(1)
		go s.telemetryLoop(ctx)
		return
	}
}

// telemetryLoop recomputes the metrics snapshot every tick and probes
// latency on the slower cadence. Each recomputation replaces the whole
// snapshot; it is never partially updated.
func (s *Session) telemetryLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TelemetryTick)
	defer ticker.Stop()

	probeEvery := int(s.cfg.LatencyInterval / s.cfg.TelemetryTick)
	if probeEvery < 1 {
		probeEvery = 1
	}

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.State() != protocol.StateConnected {
			return
		}

		tick++
		if tick%probeEvery == 0 {
			probeCtx, cancel := context.WithTimeout(ctx, s.cfg.TelemetryTick)
			rtt, err := s.transport.Ping(probeCtx)
			cancel()
			if err != nil {
				logger.Debugf("Latency probe failed: %v", err)
			} else {
				s.mu.Lock()
				s.lastLatency = float64(rtt.Milliseconds())
				s.mu.Unlock()
			}
		}

		s.collectMetrics()
	}
}

// collectMetrics computes per-tick deltas from the transport counters
// and feeds the adaptive quality step.
func (s *Session) collectMetrics() {
	stats := s.transport.Stats()
	seconds := s.cfg.TelemetryTick.Seconds()

	s.mu.Lock()
	deltaBytes := stats.BytesReceived - s.lastStats.BytesReceived
	deltaFrames := stats.FramesReceived - s.lastStats.FramesReceived
	s.lastStats = stats

	s.metrics = protocol.ConnectionMetrics{
		RoundTripTimeMs: s.lastLatency,
		BandwidthKbps:   float64(deltaBytes) * 8 / 1000 / seconds,
		FrameRate:       float64(deltaFrames) / seconds,
		DroppedFrames:   stats.DroppedFrames,
		TotalBytes:      stats.BytesReceived,
	}
	snapshot := s.metrics
	adaptive := s.cfg.AdaptiveQuality
	current := s.quality
	targets := s.cfg.Targets
	onMetrics := s.onMetrics
	onQuality := s.onQuality
	s.mu.Unlock()

	if onMetrics != nil {
		onMetrics(snapshot)
	}

	if !adaptive {
		return
	}
	next := NextSettings(current, snapshot, targets)
	if next == current {
		return
	}

	s.mu.Lock()
	s.quality = next
	s.mu.Unlock()

	logger.Debugf("Adaptive quality step: quality=%d compression=%d", next.Quality, next.Compression)
	if err := s.transport.SetQuality(next); err != nil {
		logger.Warnf("Failed to apply quality settings: %v", err)
	}
	if onQuality != nil {
		onQuality(next)
	}
}

// setState applies a state transition and notifies the UI callback.
func (s *Session) setState(state protocol.ConnectionState, reason string) {
	s.mu.Lock()
	if s.state == state && s.stateReason == reason {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.stateReason = reason
	cb := s.onStateChange
	s.mu.Unlock()

	logger.Debugf("Session state: %s %s", state, reason)
	if cb != nil {
		cb(state, reason)
	}
}

// StateReason returns the human-readable reason for the current state,
// set for error states.
func (s *Session) StateReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateReason
}
