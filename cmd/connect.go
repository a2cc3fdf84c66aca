package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deskbridge/deskbridge/internal/audit"
	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/control"
	"github.com/deskbridge/deskbridge/internal/input"
	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/protocol"
	"github.com/deskbridge/deskbridge/internal/session"
	"github.com/deskbridge/deskbridge/internal/transport"
	"github.com/deskbridge/deskbridge/internal/ui"
)

var (
	serverHost string
	serverPort int
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a remote workspace",
	Long: `Connect to a remote workspace and run the input bridge.
The session starts with the agent in control; press 't' in the status
view to take over as supervisor and 'x' to hand control back.`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVarP(&serverHost, "host", "H", "", "Server host")
	connectCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port")

	_ = viper.BindPFlag("connection.host", connectCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("connection.port", connectCmd.Flags().Lookup("port"))
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Get()
	if cfg.Connection.Host == "" {
		return fmt.Errorf("no server host specified (use --host or run 'deskbridge setup')")
	}

	// The TUI owns the terminal; logs must go to a file first.
	if cfg.Logging.FileLogging {
		logFile, err := logger.SetupFileLogging("CONNECT")
		if err != nil {
			return fmt.Errorf("failed to setup file logging: %w", err)
		}
		defer logFile.Close()
	}

	sink, closeSink, err := buildAuditSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()
	if hostname, err := os.Hostname(); err == nil {
		sink = audit.WithSource(sink, hostname)
	}

	arbiter := control.NewArbiter(protocol.ActorSupervisor, sink)

	var tokens transport.TokenSource
	if cfg.Connection.AuthURL != "" {
		tokens = transport.NewAuthClient(cfg.Connection.AuthURL)
	}
	ws := transport.NewWS(cfg.Connection.ServerURL(), tokens)

	sessCfg := session.Config{
		ReconnectDelay:  time.Duration(cfg.Connection.ReconnectDelay) * time.Second,
		MaxReconnects:   cfg.Connection.MaxReconnects,
		TelemetryTick:   time.Second,
		LatencyInterval: 5 * time.Second,
		Targets: session.Targets{
			FrameRate:     cfg.Quality.TargetFrameRate,
			BandwidthKbps: cfg.Quality.BandwidthCeiling,
		},
		InitialQuality:  protocol.PresetByName(cfg.Quality.Preset),
		AdaptiveQuality: cfg.Quality.AdaptiveEnabled,
	}
	sess := session.New(sessCfg, ws, protocol.ActorSupervisor, arbiter.Owner)

	validator := input.NewValidator(input.ValidatorConfig{
		MaxEventsPerSecond: cfg.Input.MaxEventsPerSec,
		Burst:              cfg.Input.MaxEventsPerSec / 4,
	}, sink)
	manager := input.NewManager(managerConfig(cfg), validator, arbiter, sess)
	defer manager.Teardown()

	var controlAPI *transport.ControlClient
	if cfg.Connection.AuthURL != "" {
		controlAPI = transport.NewControlClient(cfg.Connection.AuthURL)
	}

	model := ui.NewStatusModel(cfg.Connection.ServerURL(), Version, ui.Actions{
		TakeControl: func() error {
			if _, err := arbiter.RequestControl(protocol.ActorSupervisor, "manual takeover"); err != nil {
				return err
			}
			notifyControl(ctx, controlAPI, true)
			return nil
		},
		ReleaseControl: func() error {
			if err := arbiter.ReleaseControl(protocol.ActorSupervisor); err != nil {
				return err
			}
			notifyControl(ctx, controlAPI, false)
			return nil
		},
		SetPreset: sess.SetQualityPreset,
		Reconnect: func() error {
			return sess.Connect(ctx)
		},
	})

	program := tea.NewProgram(model, tea.WithAltScreen())

	sess.OnStateChange(func(state protocol.ConnectionState, reason string) {
		program.Send(ui.StateMsg{State: state, Reason: reason})
	})
	sess.OnMetrics(func(m protocol.ConnectionMetrics) {
		program.Send(ui.MetricsMsg{Metrics: m})
	})
	sess.OnQuality(func(q protocol.QualitySettings) {
		program.Send(ui.QualityMsg{Settings: q})
	})
	arbiter.OnChange(func(owner protocol.Actor) {
		program.Send(ui.ControlMsg{Owner: owner})
	})

	// The local terminal always counts as focused; the focus gate
	// matters when the pipeline is embedded in a browser surface.
	manager.Focus.SetFocused(true)
	arbiter.Begin(protocol.ActorAgent)

	if err := sess.Connect(ctx); err != nil {
		logger.Errorf("Initial connection failed: %v", err)
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("UI error: %w", err)
	}

	cancel()
	return sess.Disconnect()
}

func buildAuditSink(cfg *config.Config) (audit.Sink, func(), error) {
	if cfg.Logging.AuditPath == "" {
		return audit.NewMemorySink(), func() {}, nil
	}
	fileSink, err := audit.NewFileSink(cfg.Logging.AuditPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return fileSink, func() {
		if err := fileSink.Close(); err != nil {
			logger.Errorf("Failed to close audit log: %v", err)
		}
	}, nil
}

func managerConfig(cfg *config.Config) input.ManagerConfig {
	mc := input.DefaultManagerConfig()
	if hostname, err := os.Hostname(); err == nil {
		mc.SourceID = hostname
	}
	mc.Mouse.MovementThreshold = cfg.Input.MovementThreshold
	mc.Mouse.SmoothingFactor = cfg.Input.SmoothingFactor
	mc.Mouse.DoubleClickWindow = time.Duration(cfg.Input.DoubleClickMs) * time.Millisecond
	mc.Keyboard.RepeatDelay = time.Duration(cfg.Input.RepeatDelayMs) * time.Millisecond
	mc.Keyboard.RepeatInterval = time.Duration(cfg.Input.RepeatIntervalMs) * time.Millisecond
	mc.Keyboard.Layout = cfg.Input.KeyboardLayout
	mc.Touch.LongPressDelay = time.Duration(cfg.Input.LongPressMs) * time.Millisecond
	mc.Touch.SwipeThreshold = cfg.Input.SwipeThreshold
	mc.Validator.MaxEventsPerSecond = cfg.Input.MaxEventsPerSec
	return mc
}

// notifyControl tells the workspace API about a handoff. Best effort:
// the arbiter already switched, and the UI must not block on the call.
func notifyControl(ctx context.Context, api *transport.ControlClient, take bool) {
	if api == nil {
		return
	}
	go func() {
		callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		var err error
		if take {
			_, err = api.TakeControl(callCtx, "supervisor takeover")
		} else {
			err = api.ReleaseControl(callCtx)
		}
		if err != nil {
			logger.Warnf("Control endpoint notification failed: %v", err)
		}
	}()
}
