package agent

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHDriver runs the LLM subprocess on a remote host over SSH, used when
// the agent's working directory lives on a machine other than the
// orchestrator's own host.
type SSHDriver struct {
	addr    string
	user    string
	keyPath string
	command string
}

func NewSSHDriver(host, user, keyPath, command string) *SSHDriver {
	if command == "" {
		command = "claude-code"
	}
	return &SSHDriver{addr: host + ":22", user: user, keyPath: keyPath, command: command}
}

func (d *SSHDriver) dial() (*ssh.Client, error) {
	keyData, err := os.ReadFile(d.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	cfg := &ssh.ClientConfig{
		User:            d.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // agent hosts are provisioned, trusted infra, not user-facing
		Timeout:         10 * time.Second,
	}
	return ssh.Dial("tcp", d.addr, cfg)
}

func (d *SSHDriver) Run(ctx context.Context, prompt, workdir string, tools ToolAllowList, onOutput func(line string), deadline time.Duration) (*Result, error) {
	client, err := d.dial()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, err
	}
	session.Stderr = session.Stdout
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, err
	}

	remoteCmd := fmt.Sprintf("cd %s && %s --print --tools %s", shellQuote(workdir), d.command, string(tools))

	start := time.Now()
	if err := session.Start(remoteCmd); err != nil {
		return nil, err
	}
	if _, err := stdin.Write([]byte(prompt)); err != nil {
		return nil, err
	}
	_ = stdin.Close()

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

	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	waitDone := make(chan error, 1)
	go func() { waitDone <- session.Wait() }()

	select {
	case <-runCtx.Done():
		_ = session.Signal(ssh.SIGTERM)
		select {
		case <-waitDone:
		case <-time.After(5 * time.Second):
			_ = session.Close()
		}
		return &Result{Success: false, Output: output.String(), Error: "agent run exceeded deadline", Duration: time.Since(start)}, nil
	case err := <-waitDone:
		if err != nil {
			return &Result{Success: false, Output: output.String(), Error: err.Error(), Duration: time.Since(start)}, nil
		}
		return &Result{Success: true, Output: output.String(), Duration: time.Since(start)}, nil
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
