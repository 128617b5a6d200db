package orchestrator

import (
	"context"
	"time"

	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// pollContainersRunning polls Inspect on every named container up to
// maxRetries times at interval, succeeding once all report
// ContainerRunning. A container observed exited or dead fails the step
// immediately rather than waiting out the remaining retries.
func pollContainersRunning(ctx context.Context, d *Deps, maxRetries int, interval time.Duration, names ...string) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		allRunning := true
		for _, name := range names {
			state, err := d.Runtime.Inspect(ctx, name)
			if err != nil {
				return err
			}
			switch state {
			case types.ContainerExited, types.ContainerDead:
				return apierr.Transient("container "+name+" failed to start", nil)
			case types.ContainerRunning:
				// continue checking the rest
			default:
				allRunning = false
			}
		}
		if allRunning {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return apierr.Transient("containers did not reach running state in time", nil)
}
