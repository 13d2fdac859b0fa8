package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/waytrack/waytrack/internal/api"
	"github.com/waytrack/waytrack/internal/config"
	"github.com/waytrack/waytrack/internal/logger"
	"github.com/waytrack/waytrack/internal/tracker"
	"github.com/waytrack/waytrack/internal/wayland"
)

// busName is claimed on the session bus so a second daemon refuses to start.
const busName = "io.github.waytrack"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking daemon and API server",
	Long: `Connect to the Wayland compositor, track toplevel windows, capture
thumbnails and serve the results over HTTP.`,
	Example: `  # Run with defaults (port 8087)
  waytrack serve

  # Run on a custom port with debug logging
  waytrack serve --port 9090 --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(configMgr)
	cfg := configMgr.Get()

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("serve")
	log.Info().Str("config", configMgr.Path()).Msg("Configuration loaded")

	release, err := claimBusName()
	if err != nil {
		return err
	}
	defer release()

	tr := tracker.New(wayland.NewClient(), cfg.ThumbnailMaxDim)
	sub, err := tr.Subscribe()
	if err != nil {
		return err
	}

	server, err := api.NewServer(sub, cfg.ThumbnailCacheSize)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- server.Run(ctx)
	}()
	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	log.Info().Int("port", cfg.ServerPort).Msg("waytrack is running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down")
	cancel()
	<-pumpDone
	return nil
}

func applyFlagOverrides(configMgr *config.Manager) {
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}
}

// claimBusName takes the daemon's well-known name on the session bus,
// failing when another instance already holds it.
func claimBusName() (func(), error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		// No session bus is not fatal; the daemon just runs unguarded.
		logger.WithComponent("serve").Warn().Err(err).Msg("No session bus; skipping single-instance guard")
		return func() {}, nil
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("another waytrack instance already owns %s", busName)
	}
	return func() {
		conn.ReleaseName(busName)
		conn.Close()
	}, nil
}
