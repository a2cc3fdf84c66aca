package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/deskbridge/deskbridge/internal/protocol"
	"github.com/deskbridge/deskbridge/internal/session"
)

// Message types delivered by the session callbacks.
type (
	// StateMsg announces a connection state transition.
	StateMsg struct {
		State  protocol.ConnectionState
		Reason string
	}
	// MetricsMsg carries a fresh telemetry snapshot.
	MetricsMsg struct {
		Metrics protocol.ConnectionMetrics
	}
	// ControlMsg announces a control ownership change.
	ControlMsg struct {
		Owner protocol.Actor
	}
	// QualityMsg carries updated wire parameters.
	QualityMsg struct {
		Settings protocol.QualitySettings
	}
)

// Actions the status view can trigger on the underlying session.
type Actions struct {
	TakeControl    func() error
	ReleaseControl func() error
	SetPreset      func(name string) error
	Reconnect      func() error
}

// StatusModel is the live session status view.
type StatusModel struct {
	serverAddr string
	version    string
	actions    Actions

	spinner  spinner.Model
	state    protocol.ConnectionState
	reason   string
	metrics  protocol.ConnectionMetrics
	owner    protocol.Actor
	quality  protocol.QualitySettings
	message  string
	expireAt time.Time
	quitting bool
}

// NewStatusModel creates the status view for a session against
// serverAddr.
func NewStatusModel(serverAddr, version string, actions Actions) *StatusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &StatusModel{
		serverAddr: serverAddr,
		version:    version,
		actions:    actions,
		spinner:    sp,
		state:      protocol.StateDisconnected,
		owner:      protocol.ActorNone,
	}
}

// Init implements tea.Model.
func (m *StatusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case StateMsg:
		m.state = msg.State
		m.reason = msg.Reason
		return m, nil
	case MetricsMsg:
		m.metrics = msg.Metrics
		return m, nil
	case ControlMsg:
		m.owner = msg.Owner
		return m, nil
	case QualityMsg:
		m.quality = msg.Settings
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *StatusModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "t":
		m.runAction("take control", m.actions.TakeControl)
	case "x":
		m.runAction("release control", m.actions.ReleaseControl)
	case "r":
		if m.state == protocol.StateError {
			m.runAction("reconnect", m.actions.Reconnect)
		}
	case "1":
		m.runPreset("high")
	case "2":
		m.runPreset("balanced")
	case "3":
		m.runPreset("low")
	}
	return m, nil
}

func (m *StatusModel) runAction(name string, fn func() error) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		m.flash(fmt.Sprintf("Failed to %s: %v", name, err))
	}
}

func (m *StatusModel) runPreset(name string) {
	if m.actions.SetPreset == nil {
		return
	}
	if err := m.actions.SetPreset(name); err != nil {
		m.flash(fmt.Sprintf("Failed to set preset: %v", err))
	} else {
		m.flash("Quality preset: " + name)
	}
}

func (m *StatusModel) flash(text string) {
	m.message = text
	m.expireAt = time.Now().Add(4 * time.Second)
}

// View implements tea.Model.
func (m *StatusModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("deskbridge %s - %s", m.version, m.serverAddr)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Connection"))
	b.WriteString(m.renderState())
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Control"))
	b.WriteString(valueStyle.Render(string(m.owner)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Latency"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.0f ms (%s)", m.metrics.RoundTripTimeMs, session.ClassifyLatency(m.metrics.RoundTripTimeMs))))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Throughput"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.1f fps / %.0f kbps", m.metrics.FrameRate, m.metrics.BandwidthKbps)))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Quality"))
	b.WriteString(valueStyle.Render(fmt.Sprintf("q%d c%d scale %.2f", m.quality.Quality, m.quality.Compression, m.quality.ScaleLevel)))
	b.WriteString("\n")

	if q := session.ClassifyLatency(m.metrics.RoundTripTimeMs); m.state == protocol.StateConnected &&
		(q == protocol.QualityPoor || q == protocol.QualityTerrible) {
		b.WriteString(advisoryStyle.Render("Connection quality is degraded"))
		b.WriteString("\n")
	}

	if m.message != "" && time.Now().Before(m.expireAt) {
		b.WriteString(valueStyle.Render(m.message))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("t take control • x release • 1/2/3 quality preset • r retry • q quit"))
	return b.String()
}

func (m *StatusModel) renderState() string {
	switch m.state {
	case protocol.StateConnected:
		return connectedStyle.Render("connected")
	case protocol.StateConnecting:
		return m.spinner.View() + reconnectingStyle.Render(" connecting")
	case protocol.StateReconnecting:
		return m.spinner.View() + reconnectingStyle.Render(" reconnecting")
	case protocol.StateError:
		if m.reason != "" {
			return errorStyle.Render("error: " + m.reason)
		}
		return errorStyle.Render("error")
	default:
		return valueStyle.Render("disconnected")
	}
}
