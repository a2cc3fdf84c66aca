package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deskbridge/deskbridge/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively configure the workspace connection",
	Long: `Walk through the connection settings and write them to the
config file. Run this once before the first connect.`,
	RunE: runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	host := cfg.Connection.Host
	port := strconv.Itoa(cfg.Connection.Port)
	path := cfg.Connection.Path
	secure := cfg.Connection.Secure
	authURL := cfg.Connection.AuthURL
	preset := cfg.Quality.Preset

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server host").
				Description("Hostname or IP of the framebuffer server").
				Value(&host).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("host is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Server port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > 65535 {
						return fmt.Errorf("port must be 1-65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("Websocket path").
				Value(&path),
			huh.NewConfirm().
				Title("Use TLS (wss://)?").
				Value(&secure),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Auth endpoint URL").
				Description("Session-issuance endpoint, leave empty for none").
				Value(&authURL),
			huh.NewSelect[string]().
				Title("Quality preset").
				Options(
					huh.NewOption("High (best picture)", "high"),
					huh.NewOption("Balanced", "balanced"),
					huh.NewOption("Low (least bandwidth)", "low"),
				).
				Value(&preset),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}

	config.Set(&config.Config{
		Connection: config.ConnectionConfig{
			Host:           host,
			Port:           portNum,
			Path:           path,
			Secure:         secure,
			AuthURL:        authURL,
			ReconnectDelay: cfg.Connection.ReconnectDelay,
			MaxReconnects:  cfg.Connection.MaxReconnects,
		},
		Input:   cfg.Input,
		Quality: config.QualityConfig{Preset: preset, TargetFrameRate: cfg.Quality.TargetFrameRate, BandwidthCeiling: cfg.Quality.BandwidthCeiling, AdaptiveEnabled: cfg.Quality.AdaptiveEnabled},
		Logging: cfg.Logging,
	})

	// Save serializes viper state, so mirror the answers there too.
	viper.Set("connection.host", host)
	viper.Set("connection.port", portNum)
	viper.Set("connection.path", path)
	viper.Set("connection.secure", secure)
	viper.Set("connection.auth_url", authURL)
	viper.Set("quality.preset", preset)

	if err := config.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", config.GetConfigPath())
	fmt.Println("Run 'deskbridge connect' to start a session.")
	return nil
}
