package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kanbanhq/controlplane/pkg/agent"
	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/gateway"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/metrics"
	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/spf13/cobra"
)

var serveGatewayCmd = &cobra.Command{
	Use:   "serve-gateway",
	Short: "Run the HTTPS front door (C5): auth, auto-start routing, tenant webhook",
	RunE:  runServeGateway,
}

func runServeGateway(cmd *cobra.Command, args []string) error {
	initLogger()
	cfg := loadConfig()

	st, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()
	metrics.RegisterComponent("store", true, "")

	b, err := broker.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	metrics.RegisterComponent("broker", true, "")

	deps := &gateway.Deps{
		Store:      st,
		Broker:     b,
		Config:     cfg,
		Dispatcher: agent.NewDispatcher(),
	}

	limiter := gateway.NewRateLimiter(50, 100)
	limiter.StartCleanup(time.Hour)
	access := gateway.AccessControl{}

	metricsSrv := startMetricsServer(cfg.MetricsPort)
	defer metricsSrv.Shutdown(context.Background())

	handler := gateway.NewRouter(deps, limiter, access)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Logger.Info().Int("port", cfg.Port).Msg("gateway listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	log.Logger.Info().Msg("gateway stopped")
	return nil
}
