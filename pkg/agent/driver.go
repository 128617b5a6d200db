package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/kanbanhq/controlplane/pkg/config"
)

// Result is the outcome of one driver invocation: success, output, error, duration.
type Result struct {
	Success  bool
	Output   string
	Error    string
	Duration time.Duration
}

// Driver is the one capability all three LLM subprocess variants share.
// OnOutput is called once per line of stdout as it streams, letting the
// caller forward it as task progress; it may be nil.
type Driver interface {
	Run(ctx context.Context, prompt, workdir string, tools ToolAllowList, onOutput func(line string), deadline time.Duration) (*Result, error)
}

// NewDriver selects a driver implementation from cfg.AgentDriver
// ("local" | "ssh" | "http"), the deployment's choice of where the LLM
// subprocess actually runs.
func NewDriver(cfg *config.Config) (Driver, error) {
	switch cfg.AgentDriver {
	case "", "local":
		return NewLocalDriver(cfg.LLMProvider, cfg.LLMAPIKey), nil
	case "ssh":
		return NewSSHDriver(cfg.AgentSSHHost, cfg.AgentSSHUser, cfg.AgentSSHKey, cfg.LLMProvider), nil
	case "http":
		return NewHTTPDriver(cfg.AgentHTTPURL, cfg.LLMAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown agent driver %q", cfg.AgentDriver)
	}
}
