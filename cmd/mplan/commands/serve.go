package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/mplan/config"
	"github.com/teranos/mplan/errors"
	"github.com/teranos/mplan/logger"
	"github.com/teranos/mplan/server"
	"github.com/teranos/mplan/sym"
)

// ServeCmd starts the mplan API server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   sym.Server + " Start the mplan API server",
	Long:    `Launch the mplan HTTP server: checklist plans, tracked executions, action search, and a WebSocket feed for live execution updates.`,
	RunE:    runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	port := servePort
	if port <= 0 {
		port = config.GetServerPort()
	}

	database, err := openDatabase(serveDBPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	// Reload config on file changes so search tuning and origins pick up
	// without a restart.
	if configPath := config.FindProjectConfig(); configPath != "" {
		watcher, err := config.NewConfigWatcher(configPath)
		if err != nil {
			logger.Warnw("Config watcher unavailable", "error", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	srv := server.New(database, cfg, logger.Logger)

	// Shut down cleanly on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infow("Received signal, shutting down", "signal", sig.String())
		srv.Stop()
	}()

	return srv.Start(port)
}
