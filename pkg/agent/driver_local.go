package agent

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/kanbanhq/controlplane/pkg/log"
)

// LocalDriver runs the LLM subprocess as a local CLI command via
// exec.CommandContext, streaming its combined stdout/stderr line by line.
type LocalDriver struct {
	command string
	apiKey  string
}

// NewLocalDriver builds a driver invoking the named CLI (the provider's
// own binary, e.g. "claude").
func NewLocalDriver(command, apiKey string) *LocalDriver {
	if command == "" {
		command = "claude-code"
	}
	return &LocalDriver{command: command, apiKey: apiKey}
}

func (d *LocalDriver) Run(ctx context.Context, prompt, workdir string, tools ToolAllowList, onOutput func(line string), deadline time.Duration) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(runCtx, d.command, "--print", "--tools", string(tools))
	cmd.Dir = workdir
	cmd.Stdin = strings.NewReader(prompt)
	if d.apiKey != "" {
		cmd.Env = append(cmd.Environ(), "LLM_API_KEY="+d.apiKey)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var output strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		output.WriteString(line)
		output.WriteByte('\n')
		if onOutput != nil {
			onOutput(line)
		}
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		killHarder(cmd)
		return &Result{Success: false, Output: output.String(), Error: "agent run exceeded deadline", Duration: duration}, nil
	}
	if waitErr != nil {
		return &Result{Success: false, Output: output.String(), Error: waitErr.Error(), Duration: duration}, nil
	}
	return &Result{Success: true, Output: output.String(), Duration: duration}, nil
}

// killHarder sends SIGTERM and, if the process hasn't exited within 5s,
// SIGKILL.
func killHarder(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Logger.Warn().Err(err).Msg("failed to send SIGTERM to agent subprocess")
	}
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if err := cmd.Process.Kill(); err != nil {
			log.Logger.Warn().Err(err).Msg("failed to force-kill agent subprocess")
		}
	}
}
