// Package orchestrator is the provisioning state machine (C4). It consumes
// tasks from the broker and executes each as a linear pipeline of typed,
// idempotent steps, publishing progress after every step and a terminal
// status event when the pipeline finishes.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/kanbanhq/controlplane/pkg/adapters/dbcloner"
	"github.com/kanbanhq/controlplane/pkg/adapters/dns"
	"github.com/kanbanhq/controlplane/pkg/adapters/email"
	"github.com/kanbanhq/controlplane/pkg/adapters/identity"
	"github.com/kanbanhq/controlplane/pkg/adapters/repo"
	"github.com/kanbanhq/controlplane/pkg/adapters/runtime"
	"github.com/kanbanhq/controlplane/pkg/adapters/tls"
	"github.com/kanbanhq/controlplane/pkg/agent"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/config"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/metrics"
	"github.com/kanbanhq/controlplane/pkg/security"
	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// Deps are the constructor-injected collaborators every pipeline runs
// against. Keeping adapters as fields rather than package-level
// singletons is what lets the pipelines be tested with in-memory fakes.
type Deps struct {
	Store       store.Store
	Broker      *broker.Broker
	Runtime     *runtime.Adapter
	DNS         *dns.Adapter
	TLS         *tls.Adapter
	DBCloner    *dbcloner.Adapter
	Identity    *identity.Adapter
	Repo        *repo.Adapter
	Email       *email.Adapter
	Secrets     *security.SecretsManager
	Config      *config.Config
	AgentDriver agent.Driver
	AgentClient *agent.Client
}

// Step is one idempotent unit of pipeline work. Name is published as
// step_name in progress events.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunPipeline executes steps in order against taskID, calling
// UpdateProgress after each and translating a step error into Fail. A step
// that raises terminates the pipeline immediately. taskType
// only labels the per-step duration metric; it carries no control-flow
// meaning here.
func RunPipeline(ctx context.Context, b *broker.Broker, taskID string, taskType string, steps []Step) error {
	total := len(steps)
	for i, step := range steps {
		timer := metrics.NewTimer()
		err := step.Run(ctx)
		timer.ObserveDurationVec(metrics.StepDuration, taskType, step.Name)
		if err != nil {
			wrapped := fmt.Errorf("step %q: %w", step.Name, err)
			if failErr := b.Fail(ctx, taskID, wrapped); failErr != nil {
				log.Logger.Error().Err(failErr).Str("task_id", taskID).Msg("failed to record task failure")
			}
			return wrapped
		}
		if err := b.UpdateProgress(ctx, taskID, i+1, total, step.Name, ""); err != nil {
			return err
		}
	}
	return nil
}

// RunTeardown is like RunPipeline but best-effort: each step's error is
// logged and the pipeline continues rather than aborting, since partial
// cleanup beats leaving the rest of a teardown stuck.
func RunTeardown(ctx context.Context, b *broker.Broker, taskID string, taskType string, steps []Step) {
	total := len(steps)
	for i, step := range steps {
		timer := metrics.NewTimer()
		err := step.Run(ctx)
		timer.ObserveDurationVec(metrics.StepDuration, taskType, step.Name)
		if err != nil {
			log.Logger.Warn().Err(err).Str("task_id", taskID).Str("step", step.Name).
				Msg("teardown step failed, continuing best-effort")
		}
		if err := b.UpdateProgress(ctx, taskID, i+1, total, step.Name, ""); err != nil {
			log.Logger.Warn().Err(err).Msg("failed to publish teardown progress")
		}
	}
}

// wrapFatal wraps a non-nil error as an apierr Fatal error; nil passes
// through unchanged.
func wrapFatal(detail string, err error) error {
	if err == nil {
		return nil
	}
	return apierr.Fatal(detail, err)
}
