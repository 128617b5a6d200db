package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/metrics"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// Dispatcher is the worker loop (C4): it claims tasks from the broker's
// queues and routes each to the pipeline its TaskType names, one task at a
// time per Dispatcher instance. Running several Dispatchers against the
// same queues is how the control plane scales workers horizontally, since
// Claim's BRPop is the only coordination point between them.
type Dispatcher struct {
	Deps       *Deps
	QueueNames []string
}

// NewDispatcher builds a Dispatcher over the standard queue set: a
// "provisioning" queue for workspace/team/sandbox lifecycle tasks and an
// "agents" queue for card-dispatch tasks, kept separate so a slow agent
// run never head-of-line-blocks provisioning.
func NewDispatcher(d *Deps) *Dispatcher {
	return &Dispatcher{Deps: d, QueueNames: []string{"provisioning", "agents"}}
}

// Run claims and executes tasks until ctx is cancelled. A claim timeout is
// expected and simply loops again; any other Claim error is logged and
// retried after a short backoff so a transient Redis blip doesn't spin
// the worker hot.
func (disp *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, taskID, ok, err := disp.Deps.Broker.Claim(ctx, disp.QueueNames, 5*time.Second)
		if err != nil {
			log.Logger.Warn().Err(err).Msg("claim failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		metrics.WorkersActive.Inc()
		disp.runTask(ctx, taskID)
		metrics.WorkersActive.Dec()
	}
}

func (disp *Dispatcher) runTask(ctx context.Context, taskID string) {
	task, err := disp.Deps.Broker.Get(ctx, taskID)
	if err != nil {
		log.Logger.Error().Err(err).Str("task_id", taskID).Msg("claimed task vanished")
		return
	}

	tlog := log.WithTaskID(taskID)
	tlog.Info().Str("type", string(task.Type)).Msg("dispatching task")

	metrics.PipelinesStarted.WithLabelValues(string(task.Type)).Inc()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PipelineDuration, string(task.Type))

	switch task.Type {
	case types.TaskWorkspaceProvision:
		var p WorkspaceProvisionPayload
		disp.runPipeline(ctx, task, &p, func() []Step { return BuildWorkspaceProvisionSteps(disp.Deps, p) })
	case types.TaskWorkspaceDelete:
		var p WorkspaceDeletePayload
		disp.runTeardown(ctx, task, &p, func() []Step { return BuildWorkspaceDeleteSteps(disp.Deps, p) })
	case types.TaskWorkspaceRestart:
		var p WorkspaceRestartPayload
		disp.runPipeline(ctx, task, &p, func() []Step { return BuildWorkspaceRestartSteps(disp.Deps, p) })
	case types.TaskWorkspaceStart:
		var p WorkspaceDeletePayload // {workspace_id, slug}, same shape start needs
		disp.runPipeline(ctx, task, &p, func() []Step { return BuildWorkspaceStartSteps(disp.Deps, p) })
	case types.TaskTeamProvision:
		var p TeamProvisionPayload
		disp.runPipeline(ctx, task, &p, func() []Step { return BuildTeamProvisionSteps(disp.Deps, p.TeamID, p.TeamSlug) })
	case types.TaskTeamDelete:
		var p TeamDeletePayload
		disp.runTeardown(ctx, task, &p, func() []Step { return BuildTeamDeleteSteps(disp.Deps, p.TeamID, p.TeamSlug) })
	case types.TaskTeamRestart:
		var p TeamRestartPayload
		disp.runPipeline(ctx, task, &p, func() []Step { return BuildTeamRestartSteps(disp.Deps, p) })
	case types.TaskTeamStart:
		var p TeamProvisionPayload
		disp.runPipeline(ctx, task, &p, func() []Step { return BuildTeamStartSteps(disp.Deps, p) })
	case types.TaskSandboxProvision:
		var p SandboxProvisionPayload
		disp.runPipeline(ctx, task, &p, func() []Step { return BuildSandboxProvisionSteps(disp.Deps, p) })
	case types.TaskSandboxDelete:
		var p sandboxDeleteTaskPayload
		disp.runTeardown(ctx, task, &p, func() []Step {
			return BuildSandboxDeleteSteps(disp.Deps, SandboxDeletePayload{SandboxID: p.SandboxID, FullSlug: p.FullSlug},
				p.WorkspaceSlug, p.FullSlug, p.Branch, p.DatabaseName)
		})
	case types.TaskAgentProcessCard:
		var p AgentProcessCardPayload
		disp.runPipeline(ctx, task, &p, func() []Step { return disp.Deps.buildAgentProcessCardSteps(task.ID, p) })
	default:
		if failErr := disp.Deps.Broker.Fail(ctx, taskID, apierr.Fatal("unknown task type: "+string(task.Type), nil)); failErr != nil {
			tlog.Error().Err(failErr).Msg("failed to record unknown-task-type failure")
		}
	}
}

// sandboxDeleteTaskPayload is the wire shape sandbox.delete tasks are
// enqueued with; it carries the extra fields teardown needs (workspace
// slug for the repo, branch and database name to clean up) beyond the
// minimal SandboxDeletePayload the API surfaces elsewhere.
type sandboxDeleteTaskPayload struct {
	SandboxID     string `json:"sandbox_id"`
	WorkspaceSlug string `json:"workspace_slug"`
	FullSlug      string `json:"full_slug"`
	Branch        string `json:"branch"`
	DatabaseName  string `json:"database_name"`
}

func (disp *Dispatcher) runPipeline(ctx context.Context, task *types.Task, payload any, build func() []Step) {
	if err := json.Unmarshal(task.Payload, payload); err != nil {
		disp.fail(ctx, task.ID, apierr.Fatal("unmarshal task payload", err))
		metrics.PipelinesCompleted.WithLabelValues(string(task.Type), "failed").Inc()
		return
	}
	if err := RunPipeline(ctx, disp.Deps.Broker, task.ID, string(task.Type), build()); err != nil {
		metrics.PipelinesCompleted.WithLabelValues(string(task.Type), "failed").Inc()
		return // RunPipeline already called Fail
	}
	if err := disp.Deps.Broker.Complete(ctx, task.ID, nil); err != nil {
		log.Logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to record task completion")
	}
	metrics.PipelinesCompleted.WithLabelValues(string(task.Type), "completed").Inc()
}

func (disp *Dispatcher) runTeardown(ctx context.Context, task *types.Task, payload any, build func() []Step) {
	if err := json.Unmarshal(task.Payload, payload); err != nil {
		disp.fail(ctx, task.ID, apierr.Fatal("unmarshal task payload", err))
		metrics.PipelinesCompleted.WithLabelValues(string(task.Type), "failed").Inc()
		return
	}
	RunTeardown(ctx, disp.Deps.Broker, task.ID, string(task.Type), build())
	if err := disp.Deps.Broker.Complete(ctx, task.ID, nil); err != nil {
		log.Logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to record task completion")
	}
	metrics.PipelinesCompleted.WithLabelValues(string(task.Type), "completed").Inc()
}

func (disp *Dispatcher) fail(ctx context.Context, taskID string, err error) {
	if failErr := disp.Deps.Broker.Fail(ctx, taskID, err); failErr != nil {
		log.Logger.Error().Err(failErr).Str("task_id", taskID).Msg("failed to record task failure")
	}
}
