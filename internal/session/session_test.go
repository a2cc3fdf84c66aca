package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskbridge/deskbridge/internal/protocol"
)

// fakeTransport is a scriptable in-memory transport.
type fakeTransport struct {
	mu           sync.Mutex
	connectErrs  []error // consumed one per Connect call, nil past the end
	connectCalls int
	sent         []*protocol.InputEvent
	quality      []protocol.QualitySettings
	stats        TransportStats
	pingRTT      time.Duration
	onDisconnect func(error)
	closed       bool
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	f.closed = false
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTransport) SendInput(event *protocol.InputEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeTransport) SetQuality(settings protocol.QualitySettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quality = append(f.quality, settings)
	return nil
}

func (f *fakeTransport) Ping(ctx context.Context) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingRTT, nil
}

func (f *fakeTransport) Stats() TransportStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeTransport) OnDisconnect(cb func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = cb
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) dropConnection(cause error) {
	f.mu.Lock()
	cb := f.onDisconnect
	f.mu.Unlock()
	cb(cause)
}

func (f *fakeTransport) connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeTransport) qualityCalls() []protocol.QualitySettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.QualitySettings, len(f.quality))
	copy(out, f.quality)
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnects = 3
	cfg.TelemetryTick = 10 * time.Millisecond
	cfg.LatencyInterval = 20 * time.Millisecond
	cfg.AdaptiveQuality = false
	return cfg
}

func newTestSession(ft *fakeTransport) *Session {
	return New(testConfig(), ft, protocol.ActorSupervisor, func() protocol.Actor {
		return protocol.ActorAgent
	})
}

func TestSessionConnect(t *testing.T) {
	t.Run("successful connect", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)
		defer s.Disconnect()

		err := s.Connect(context.Background())

		require.NoError(t, err)
		assert.Equal(t, protocol.StateConnected, s.State())
		// The initial quality settings go out on connect.
		assert.NotEmpty(t, ft.qualityCalls())
	})

	t.Run("connect while connected is rejected", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)
		defer s.Disconnect()

		require.NoError(t, s.Connect(context.Background()))
		err := s.Connect(context.Background())

		assert.Error(t, err)
		assert.Equal(t, 1, ft.connects())
	})

	t.Run("transient failure retries and recovers", func(t *testing.T) {
		ft := &fakeTransport{connectErrs: []error{errors.New("refused")}}
		s := newTestSession(ft)
		defer s.Disconnect()

		err := s.Connect(context.Background())

		assert.Error(t, err)
		assert.Eventually(t, func() bool {
			return s.State() == protocol.StateConnected
		}, time.Second, 5*time.Millisecond)
		assert.GreaterOrEqual(t, ft.connects(), 2)
	})

	t.Run("transient failure exhausting the cap lands in error state", func(t *testing.T) {
		boom := errors.New("refused")
		ft := &fakeTransport{connectErrs: []error{boom, boom, boom, boom}}
		s := newTestSession(ft)
		defer s.Disconnect()

		err := s.Connect(context.Background())

		assert.Error(t, err)
		assert.Eventually(t, func() bool {
			return s.State() == protocol.StateError
		}, time.Second, 5*time.Millisecond)
		assert.Contains(t, s.StateReason(), "gave up after 3 reconnect attempts")
	})

	t.Run("auth failure is terminal and never retried", func(t *testing.T) {
		ft := &fakeTransport{connectErrs: []error{ErrAuthFailed}}
		s := newTestSession(ft)

		err := s.Connect(context.Background())

		assert.ErrorIs(t, err, ErrAuthFailed)
		assert.Equal(t, protocol.StateError, s.State())
		assert.Equal(t, "authentication failed", s.StateReason())

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, ft.connects())
	})
}

func TestSessionDisconnect(t *testing.T) {
	t.Run("clean teardown", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)
		require.NoError(t, s.Connect(context.Background()))

		require.NoError(t, s.Disconnect())

		assert.Equal(t, protocol.StateDisconnected, s.State())
	})

	t.Run("disconnect is idempotent", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)
		require.NoError(t, s.Connect(context.Background()))

		require.NoError(t, s.Disconnect())
		require.NoError(t, s.Disconnect())

		assert.Equal(t, protocol.StateDisconnected, s.State())
	})

	t.Run("disconnect without connect is a no-op", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)

		assert.NoError(t, s.Disconnect())
	})
}

func TestSessionSendInput(t *testing.T) {
	t.Run("rejected while disconnected", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)

		err := s.SendInput(protocol.NewMouseEvent(&protocol.MouseEvent{Action: protocol.MouseMove}))

		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("forwarded while connected", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)
		defer s.Disconnect()
		require.NoError(t, s.Connect(context.Background()))

		err := s.SendInput(protocol.NewMouseEvent(&protocol.MouseEvent{Action: protocol.MouseMove}))

		assert.NoError(t, err)
		ft.mu.Lock()
		defer ft.mu.Unlock()
		assert.Len(t, ft.sent, 1)
	})
}

func TestSessionReconnect(t *testing.T) {
	t.Run("unexpected drop triggers reconnect", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)
		defer s.Disconnect()
		require.NoError(t, s.Connect(context.Background()))

		ft.dropConnection(errors.New("connection reset"))

		assert.Eventually(t, func() bool {
			return s.State() == protocol.StateConnected && ft.connects() >= 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("gives up after the attempt cap", func(t *testing.T) {
		boom := errors.New("still down")
		ft := &fakeTransport{connectErrs: []error{nil, boom, boom, boom, boom}}
		s := newTestSession(ft)
		defer s.Disconnect()
		require.NoError(t, s.Connect(context.Background()))

		ft.dropConnection(errors.New("connection reset"))

		assert.Eventually(t, func() bool {
			return s.State() == protocol.StateError
		}, time.Second, 5*time.Millisecond)
		assert.Contains(t, s.StateReason(), "gave up after 3 reconnect attempts")
	})

	t.Run("auth failure during reconnect stops retrying", func(t *testing.T) {
		ft := &fakeTransport{connectErrs: []error{nil, ErrAuthFailed}}
		s := newTestSession(ft)
		defer s.Disconnect()
		require.NoError(t, s.Connect(context.Background()))

		ft.dropConnection(errors.New("connection reset"))

		assert.Eventually(t, func() bool {
			return s.State() == protocol.StateError
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, "authentication failed", s.StateReason())
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 2, ft.connects())
	})

	t.Run("explicit connect supersedes the reconnect loop", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxReconnects = 0 // retry forever
		cfg.ReconnectDelay = 100 * time.Millisecond
		ft := &fakeTransport{}
		s := New(cfg, ft, protocol.ActorSupervisor, nil)
		require.NoError(t, s.Connect(context.Background()))

		ft.dropConnection(errors.New("connection reset"))
		assert.Eventually(t, func() bool {
			return s.State() == protocol.StateReconnecting
		}, time.Second, time.Millisecond)

		// The user hits reconnect while the loop sits in its backoff.
		// The loop must die with its context, not linger on an orphaned
		// one, and teardown must not hang waiting for it.
		require.NoError(t, s.Connect(context.Background()))
		assert.Equal(t, protocol.StateConnected, s.State())

		done := make(chan error, 1)
		go func() { done <- s.Disconnect() }()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("disconnect did not return")
		}
		assert.Equal(t, protocol.StateDisconnected, s.State())
		assert.Equal(t, 2, ft.connects())
	})

	t.Run("deliberate disconnect does not reconnect", func(t *testing.T) {
		ft := &fakeTransport{}
		s := newTestSession(ft)
		require.NoError(t, s.Connect(context.Background()))

		require.NoError(t, s.Disconnect())
		ft.dropConnection(errors.New("late close notification"))
		time.Sleep(50 * time.Millisecond)

		assert.Equal(t, protocol.StateDisconnected, s.State())
		assert.Equal(t, 1, ft.connects())
	})
}

func TestSessionQualityPreset(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestSession(ft)
	defer s.Disconnect()
	require.NoError(t, s.Connect(context.Background()))

	var fromCallback protocol.QualitySettings
	s.OnQuality(func(q protocol.QualitySettings) { fromCallback = q })

	require.NoError(t, s.SetQualityPreset("low"))

	assert.Equal(t, protocol.PresetLow, s.Quality())
	assert.Equal(t, protocol.PresetLow, fromCallback)
	calls := ft.qualityCalls()
	assert.Equal(t, protocol.PresetLow, calls[len(calls)-1])
}

func TestSessionAdaptiveQuality(t *testing.T) {
	cfg := testConfig()
	cfg.AdaptiveQuality = true
	ft := &fakeTransport{}
	s := New(cfg, ft, protocol.ActorSupervisor, nil)
	defer s.Disconnect()
	require.NoError(t, s.Connect(context.Background()))

	// No frames arriving at all reads as poor performance; the loop
	// must walk the settings toward more compression.
	assert.Eventually(t, func() bool {
		q := s.Quality()
		return q.Quality > protocol.PresetBalanced.Quality
	}, time.Second, 5*time.Millisecond)
}

func TestSessionMetrics(t *testing.T) {
	ft := &fakeTransport{pingRTT: 40 * time.Millisecond}
	s := newTestSession(ft)
	defer s.Disconnect()
	require.NoError(t, s.Connect(context.Background()))

	ft.mu.Lock()
	ft.stats = TransportStats{BytesReceived: 125000, FramesReceived: 30, DroppedFrames: 2}
	ft.mu.Unlock()

	assert.Eventually(t, func() bool {
		m := s.Metrics()
		return m.TotalBytes == 125000 && m.DroppedFrames == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSessionSnapshot(t *testing.T) {
	ft := &fakeTransport{}
	owner := protocol.ActorAgent
	var mu sync.Mutex
	s := New(testConfig(), ft, protocol.ActorSupervisor, func() protocol.Actor {
		mu.Lock()
		defer mu.Unlock()
		return owner
	})
	defer s.Disconnect()

	snap := s.Snapshot()
	assert.Equal(t, protocol.StateDisconnected, snap.ConnectionState)
	assert.Equal(t, protocol.ActorAgent, snap.ControlOwner)
	assert.False(t, snap.HasLocalControl)
	assert.NotEmpty(t, snap.ID)

	require.NoError(t, s.Connect(context.Background()))
	mu.Lock()
	owner = protocol.ActorSupervisor
	mu.Unlock()

	snap = s.Snapshot()
	assert.Equal(t, protocol.StateConnected, snap.ConnectionState)
	assert.True(t, snap.HasLocalControl)
}
