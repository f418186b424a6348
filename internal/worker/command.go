package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandRequest is the task payload understood by the reference worker:
// a command to execute with optional stdin and environment.
type CommandRequest struct {
	Argv  []string          `json:"argv"`
	Stdin string            `json:"stdin,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
}

// CommandResult is the serialized outcome of a CommandRequest.
type CommandResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// ExecHandler runs a CommandRequest payload and captures its outcome.
// A non-zero exit is a task result, not a handler error: the command ran,
// and its exit code is part of the answer.
func ExecHandler(ctx context.Context, input []byte) ([]byte, error) {
	var req CommandRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("failed to decode command payload: %w", err)
	}
	if len(req.Argv) == 0 {
		return nil, fmt.Errorf("command payload has empty argv")
	}

	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...)
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}
	if len(req.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range req.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := CommandResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", req.Argv[0], err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	return json.Marshal(result)
}
