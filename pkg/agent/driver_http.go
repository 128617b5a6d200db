package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPDriver runs the LLM subprocess through a remote HTTP API that
// streams newline-delimited output chunks, the third of the three
// interchangeable driver variants ("remote HTTP").
type HTTPDriver struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPDriver(baseURL, apiKey string) *HTTPDriver {
	return &HTTPDriver{baseURL: baseURL, apiKey: apiKey, client: &http.Client{}}
}

type httpDriverRequest struct {
	Prompt  string `json:"prompt"`
	Workdir string `json:"workdir"`
	Tools   string `json:"tools"`
}

func (d *HTTPDriver) Run(ctx context.Context, prompt, workdir string, tools ToolAllowList, onOutput func(line string), deadline time.Duration) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(httpDriverRequest{Prompt: prompt, Workdir: workdir, Tools: string(tools)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(runCtx, http.MethodPost, strings.TrimSuffix(d.baseURL, "/")+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		if runCtx.Err() != nil {
			return &Result{Success: false, Error: "agent run exceeded deadline", Duration: time.Since(start)}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &Result{Success: false, Error: fmt.Sprintf("agent http driver returned %d", resp.StatusCode), Duration: time.Since(start)}, nil
	}

	var output strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		output.WriteString(line)
		output.WriteByte('\n')
		if onOutput != nil {
			onOutput(line)
		}
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return &Result{Success: false, Output: output.String(), Error: "agent run exceeded deadline", Duration: time.Since(start)}, nil
	}
	return &Result{Success: true, Output: output.String(), Duration: time.Since(start)}, nil
}
