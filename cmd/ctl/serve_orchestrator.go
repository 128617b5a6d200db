package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kanbanhq/controlplane/pkg/adapters/dbcloner"
	"github.com/kanbanhq/controlplane/pkg/adapters/dns"
	"github.com/kanbanhq/controlplane/pkg/adapters/email"
	"github.com/kanbanhq/controlplane/pkg/adapters/identity"
	"github.com/kanbanhq/controlplane/pkg/adapters/repo"
	"github.com/kanbanhq/controlplane/pkg/adapters/runtime"
	"github.com/kanbanhq/controlplane/pkg/adapters/tls"
	"github.com/kanbanhq/controlplane/pkg/agent"
	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/metrics"
	"github.com/kanbanhq/controlplane/pkg/orchestrator"
	"github.com/kanbanhq/controlplane/pkg/security"
	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/spf13/cobra"
)

var serveOrchestratorCmd = &cobra.Command{
	Use:   "serve-orchestrator",
	Short: "Run the provisioning worker (C4): claims tasks and executes pipelines",
	RunE:  runServeOrchestrator,
}

func runServeOrchestrator(cmd *cobra.Command, args []string) error {
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

	rt, err := runtime.New("/run/containerd/containerd.sock", cfg.DataDir+"/logs")
	if err != nil {
		return err
	}
	metrics.RegisterComponent("containerd", true, "")

	zoneFile := cfg.DataDir + "/dns/zones.db"
	dnsAdapter := dns.New(zoneFile, cfg.IsProduction())

	var tlsAdapter *tls.Adapter
	if cfg.IsProduction() {
		tlsAdapter, err = tls.NewProduction(cfg.DataDir+"/certs", cfg.EmailFrom)
		if err != nil {
			return err
		}
	} else {
		tlsAdapter = tls.New(cfg.DataDir + "/certs")
	}

	dbClonerAdapter := dbcloner.New("postgres", os.Getenv("CP_POSTGRES_PASSWORD"), func(container string) string {
		return container
	})

	identityAdapter, err := identity.New(cfg.AzureTenantID, cfg.AzureClientID, cfg.AzureClientSecret, cfg.AzureAuthority)
	if err != nil {
		return err
	}

	repoAdapter := repo.New(cfg.GitHubToken)
	emailAdapter := email.New(cfg.EmailFrom, cfg.SendGridAPIKey, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)

	secretsManager, err := newSecretsManager()
	if err != nil {
		return err
	}

	agentDriver, err := agent.NewDriver(cfg)
	if err != nil {
		return err
	}

	deps := &orchestrator.Deps{
		Store:       st,
		Broker:      b,
		Runtime:     rt,
		DNS:         dnsAdapter,
		TLS:         tlsAdapter,
		DBCloner:    dbClonerAdapter,
		Identity:    identityAdapter,
		Repo:        repoAdapter,
		Email:       emailAdapter,
		Secrets:     secretsManager,
		Config:      cfg,
		AgentDriver: agentDriver,
		AgentClient: agent.NewClient(cfg.AgentServiceToken),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSrv := startMetricsServer(cfg.MetricsPort)
	defer metricsSrv.Shutdown(context.Background())

	collector := metrics.NewCollector(b, []string{"provisioning", "agents"})
	collector.Start()
	defer collector.Stop()

	listener := orchestrator.NewStatusListener(deps)
	go listener.Run(ctx)

	dispatcher := orchestrator.NewDispatcher(deps)
	log.Logger.Info().Str("queues", "provisioning,agents").Msg("orchestrator worker starting")
	dispatcher.Run(ctx)

	log.Logger.Info().Msg("orchestrator worker stopped")
	return nil
}

func newSecretsManager() (*security.SecretsManager, error) {
	if key := os.Getenv("CP_SECRETS_KEY"); key != "" {
		return security.NewSecretsManagerFromPassword(key)
	}
	return security.NewSecretsManagerFromPassword("dev-insecure-secrets-key")
}
