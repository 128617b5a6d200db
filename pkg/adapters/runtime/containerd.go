// Package runtime is the container runtime adapter (C3): idempotent
// create/remove/inspect/logs over containerd. Remove-before-create keeps
// repeated provisioning runs convergent; labels carry the
// gateway's auto-discovery host rules.
package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/types"
)

const (
	// Namespace is the containerd namespace the control plane's tenant
	// containers live in.
	Namespace = "kanban-controlplane"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// Adapter is the containerd-backed implementation of the runtime adapter.
type Adapter struct {
	client *containerd.Client
	logDir string
}

// New connects to containerd at socketPath (DefaultSocketPath if empty).
// Container stdout/stderr are captured to logDir/{name}.log so Logs can
// serve a tail without attaching to a live task.
func New(socketPath, logDir string) (*Adapter, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, apierr.Transient("connect to containerd", err)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		client.Close()
		return nil, apierr.Transient("create container log directory", err)
	}
	return &Adapter{client: client, logDir: logDir}, nil
}

func (a *Adapter) logPath(name string) string {
	return filepath.Join(a.logDir, name+".log")
}

func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func (a *Adapter) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, Namespace)
}

// Create starts a container from spec. Any existing container of the same
// name is removed first, so re-running a provisioning step converges
// instead of failing on a name conflict.
func (a *Adapter) Create(ctx context.Context, spec types.ContainerSpec) error {
	ctx = a.ctx(ctx)

	if err := a.Remove(ctx, spec.Name); err != nil {
		return err
	}

	image, err := a.client.Pull(ctx, spec.Image, containerd.WithPullUnpack)
	if err != nil {
		return apierr.Transient(fmt.Sprintf("pull image %s", spec.Image), err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}
	if len(spec.Mounts) > 0 {
		opts = append(opts, oci.WithMounts(toOCIMounts(spec.Mounts)))
	}

	container, err := a.client.NewContainer(
		ctx, spec.Name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.Name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(spec.Labels),
	)
	if err != nil {
		return apierr.Transient("create container", err)
	}

	task, err := container.NewTask(ctx, cio.LogFile(a.logPath(spec.Name)))
	if err != nil {
		return apierr.Transient("create task", err)
	}
	if err := task.Start(ctx); err != nil {
		return apierr.Transient("start task", err)
	}
	return nil
}

func toOCIMounts(mounts []types.Mount) []specs.Mount {
	out := make([]specs.Mount, 0, len(mounts))
	for _, m := range mounts {
		options := []string{"rbind"}
		if m.ReadOnly {
			options = []string{"ro", "rbind"}
		}
		out = append(out, specs.Mount{
			Source:      m.Source,
			Destination: m.Target,
			Type:        "bind",
			Options:     options,
		})
	}
	return out
}

// Remove is a no-op if the container is absent.
func (a *Adapter) Remove(ctx context.Context, name string) error {
	ctx = a.ctx(ctx)
	container, err := a.client.LoadContainer(ctx, name)
	if err != nil {
		return nil
	}

	if task, err := container.Task(ctx, nil); err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_ = task.Kill(stopCtx, syscall.SIGTERM)
		statusC, waitErr := task.Wait(stopCtx)
		if waitErr == nil {
			select {
			case <-statusC:
			case <-stopCtx.Done():
				_ = task.Kill(ctx, syscall.SIGKILL)
			}
		}
		_, _ = task.Delete(ctx)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return apierr.Transient("delete container", err)
	}
	return nil
}

// Inspect returns the observed state of name. Absent containers report
// ContainerAbsent rather than an error, so health-check polling loops can
// treat "not yet created" and "not yet running" uniformly.
func (a *Adapter) Inspect(ctx context.Context, name string) (types.ContainerState, error) {
	ctx = a.ctx(ctx)
	container, err := a.client.LoadContainer(ctx, name)
	if err != nil {
		return types.ContainerAbsent, nil
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.ContainerExited, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.ContainerExited, apierr.Transient("get task status", err)
	}

	switch status.Status {
	case containerd.Running:
		return types.ContainerRunning, nil
	case containerd.Stopped:
		return types.ContainerExited, nil
	default:
		return types.ContainerDead, nil
	}
}

// Logs returns up to the last n lines of the container's captured
// stdout/stderr log file.
func (a *Adapter) Logs(ctx context.Context, name string, n int) (string, error) {
	data, err := os.ReadFile(a.logPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apierr.Transient("read container log", err)
	}
	if n <= 0 {
		return "", nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}
