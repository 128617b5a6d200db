// Command ctl is the control plane's single binary: one cobra root with a
// subcommand per process role plus operator tooling.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/kanbanhq/controlplane/pkg/config"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build).
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ctl",
	Short: "ctl runs the kanban control plane's orchestrator and gateway",
	Long: `ctl is the control plane for the kanban-as-a-service platform: it
provisions, reconciles, and tears down the compute, storage, DNS, TLS,
identity, and database resources backing each tenant workspace.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(serveOrchestratorCmd)
	rootCmd.AddCommand(serveGatewayCmd)
	rootCmd.AddCommand(migrateCmd)
}

// initLogger wires pkg/log from CP_LOG_LEVEL/CP_LOG_FORMAT before
// constructing any subsystem.
func initLogger() {
	level := log.InfoLevel
	switch os.Getenv("CP_LOG_LEVEL") {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	log.Init(log.Config{
		Level:      level,
		JSONOutput: os.Getenv("CP_LOG_FORMAT") != "console",
		Output:     os.Stdout,
	})
}

// loadConfig reads process configuration from the environment (pkg/config)
// after the logger is up, so config-loading problems are themselves
// logged consistently.
func loadConfig() *config.Config {
	return config.Load()
}

// startMetricsServer exposes /metrics on its own port so Prometheus
// scraping never shares a listener with tenant-facing traffic.
func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}
