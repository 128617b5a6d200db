// Package config reads process configuration from environment variables;
// no config-parsing library is introduced for what is a flat set of
// runtime knobs.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultReservedSlugs is the fallback blocklist when CP_RESERVED_SLUGS is
// unset. Kept adjustable via configuration.
var DefaultReservedSlugs = []string{
	"app", "api", "www", "mail", "admin", "portal", "static", "assets", "sandbox",
}

// Config is the process-wide environment-derived configuration. Every
// binary (gateway, orchestrator worker, ctl) builds one from Load.
type Config struct {
	// Domain is the base DNS domain tenants are published under.
	Domain string
	// Port is the HTTP listen port for whichever server this process runs.
	Port int

	// MetricsPort serves /metrics (Prometheus) on every binary, separate
	// from the main listen port so scraping never competes with tenant
	// traffic.
	MetricsPort int

	// DataDir is the root of the persisted tenant layout (/data/teams/...)
	// and the bbolt database file.
	DataDir string

	// ContainerNetwork is the shared internal network all tenant/sandbox
	// containers attach to.
	ContainerNetwork string

	// HostIP is the address DNS A-records point tenant subdomains at.
	HostIP string

	// PostgresContainer is the shared Postgres server container app
	// databases are created/cloned on.
	PostgresContainer string

	// RedisURL configures the task broker (C2).
	RedisURL string

	// HostProjectPath is the host path mounted read-write into agent
	// containers as the sandbox working directory root.
	HostProjectPath string

	// Environment selects "development" or "production" adapter behavior
	// (self-signed vs ACME certs, brief sleep vs real DNS propagation
	// wait).
	Environment string

	// IdP / Azure Entra External ID (CIAM).
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string
	AzureAuthority    string

	// Email.
	SendGridAPIKey string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	EmailFrom      string

	// GitHub repository hosting.
	GitHubToken    string
	GitHubOrg      string
	GitHubAPIBase  string

	// Agent dispatch.
	AgentImage     string
	AgentDriver    string // local | ssh | http
	AgentSSHHost   string
	AgentSSHUser   string
	AgentSSHKey    string
	AgentHTTPURL   string
	LLMProvider    string
	LLMAPIKey      string
	// AgentServiceToken authenticates the agent dispatcher's comment-post
	// and card-move calls back to a tenant's own REST API.
	AgentServiceToken string

	// Portal JWT validation.
	JWTSecret string

	// ReservedSlugs blocks these workspace/sandbox slugs outright.
	ReservedSlugs []string

	// DefaultTimeout bounds adapter HTTP calls absent a more specific
	// per-call deadline.
	DefaultTimeout time.Duration
}

// Load builds a Config from the process environment, applying sensible
// defaults for every value an operator hasn't overridden.
func Load() *Config {
	c := &Config{
		Domain:           getenv("CP_DOMAIN", "kanban.local"),
		Port:             getenvInt("CP_PORT", 8080),
		MetricsPort:      getenvInt("CP_METRICS_PORT", 9090),
		DataDir:          getenv("CP_DATA_DIR", "/data"),
		ContainerNetwork: getenv("CP_CONTAINER_NETWORK", "kanban-net"),
		HostIP:           getenv("CP_HOST_IP", "127.0.0.1"),
		PostgresContainer: getenv("CP_POSTGRES_CONTAINER", "kanban-postgres"),
		RedisURL:         getenv("CP_REDIS_URL", "redis://localhost:6379/0"),
		HostProjectPath:  getenv("CP_HOST_PROJECT_PATH", "/srv/kanban-projects"),
		Environment:      getenv("CP_ENVIRONMENT", "development"),

		AzureTenantID:     os.Getenv("CP_AZURE_TENANT_ID"),
		AzureClientID:     os.Getenv("CP_AZURE_CLIENT_ID"),
		AzureClientSecret: os.Getenv("CP_AZURE_CLIENT_SECRET"),
		AzureAuthority:    getenv("CP_AZURE_AUTHORITY", "https://login.microsoftonline.com"),

		SendGridAPIKey: os.Getenv("CP_SENDGRID_API_KEY"),
		SMTPHost:       os.Getenv("CP_SMTP_HOST"),
		SMTPPort:       getenvInt("CP_SMTP_PORT", 587),
		SMTPUser:       os.Getenv("CP_SMTP_USER"),
		SMTPPassword:   os.Getenv("CP_SMTP_PASSWORD"),
		EmailFrom:      getenv("CP_EMAIL_FROM", "no-reply@kanban.local"),

		GitHubToken:   os.Getenv("CP_GITHUB_TOKEN"),
		GitHubOrg:     getenv("CP_GITHUB_ORG", "kanban-workspaces"),
		GitHubAPIBase: os.Getenv("CP_GITHUB_API_BASE"),

		AgentImage:   getenv("CP_AGENT_IMAGE", "kanban-agent:latest"),
		AgentDriver:  getenv("CP_AGENT_DRIVER", "local"),
		AgentSSHHost: os.Getenv("CP_AGENT_SSH_HOST"),
		AgentSSHUser: os.Getenv("CP_AGENT_SSH_USER"),
		AgentSSHKey:  os.Getenv("CP_AGENT_SSH_KEY"),
		AgentHTTPURL: os.Getenv("CP_AGENT_HTTP_URL"),
		LLMProvider:  getenv("CP_LLM_PROVIDER", "claude-code"),
		LLMAPIKey:    os.Getenv("CP_LLM_API_KEY"),

		AgentServiceToken: os.Getenv("CP_AGENT_SERVICE_TOKEN"),

		JWTSecret: getenv("CP_JWT_SECRET", "dev-insecure-secret"),

		DefaultTimeout: 30 * time.Second,
	}

	if raw := os.Getenv("CP_RESERVED_SLUGS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.ReservedSlugs = append(c.ReservedSlugs, s)
			}
		}
	} else {
		c.ReservedSlugs = append([]string(nil), DefaultReservedSlugs...)
	}

	return c
}

// IsProduction reports whether production adapter behavior (ACME, real
// DNS propagation wait) should be used.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
