package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/logger"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage deskbridge configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Connection]")
		logger.Infof("  Host: %s", cfg.Connection.Host)
		logger.Infof("  Port: %d", cfg.Connection.Port)
		logger.Infof("  Path: %s", cfg.Connection.Path)
		logger.Infof("  Secure: %v", cfg.Connection.Secure)
		logger.Infof("  Auth URL: %s", cfg.Connection.AuthURL)
		logger.Infof("  Reconnect Delay: %d seconds", cfg.Connection.ReconnectDelay)
		logger.Infof("  Max Reconnects: %d", cfg.Connection.MaxReconnects)
		logger.Infof("  Server URL: %s", cfg.Connection.ServerURL())

		logger.Info("\n[Input]")
		logger.Infof("  Movement Threshold: %.1f px", cfg.Input.MovementThreshold)
		logger.Infof("  Smoothing Factor: %.2f", cfg.Input.SmoothingFactor)
		logger.Infof("  Double Click Window: %d ms", cfg.Input.DoubleClickMs)
		logger.Infof("  Repeat Delay: %d ms", cfg.Input.RepeatDelayMs)
		logger.Infof("  Repeat Interval: %d ms", cfg.Input.RepeatIntervalMs)
		logger.Infof("  Long Press: %d ms", cfg.Input.LongPressMs)
		logger.Infof("  Swipe Threshold: %.1f px", cfg.Input.SwipeThreshold)
		logger.Infof("  Keyboard Layout: %s", cfg.Input.KeyboardLayout)
		logger.Infof("  Max Events/sec: %d", cfg.Input.MaxEventsPerSec)

		logger.Info("\n[Quality]")
		logger.Infof("  Preset: %s", cfg.Quality.Preset)
		logger.Infof("  Target Frame Rate: %.0f fps", cfg.Quality.TargetFrameRate)
		logger.Infof("  Bandwidth Ceiling: %.0f kbps", cfg.Quality.BandwidthCeiling)
		logger.Infof("  Adaptive: %v", cfg.Quality.AdaptiveEnabled)

		logger.Info("\n[Logging]")
		logger.Infof("  File Logging: %v", cfg.Logging.FileLogging)
		logger.Infof("  Log Level: %s", cfg.Logging.LogLevel)
		logger.Infof("  Audit Path: %s", cfg.Logging.AuditPath)

		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info(config.GetConfigPath())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
