package backend

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/hal2001/kubeface/internal/apperrors"
)

// DefaultWorkerCommand is the worker binary launched per task when no
// command is configured.
const DefaultWorkerCommand = "kubeface-run-task"

// LocalProcessConfig configures the local process backend.
type LocalProcessConfig struct {
	// WorkerCommand is the argv prefix of the worker; the task's input and
	// output paths are appended as positional arguments. Defaults to
	// DefaultWorkerCommand.
	WorkerCommand []string

	// DeleteInput tells the worker to delete the input object after
	// reading it.
	DeleteInput bool
}

// LocalProcess runs each task as a separate worker process on this host.
// It does not monitor the child: a worker that crashes before writing its
// output is invisible to the orchestrator except as a task that never
// completes. Layer an external timeout policy if that matters.
type LocalProcess struct {
	config LocalProcessConfig
	logger *slog.Logger
}

// NewLocalProcess creates a local process backend.
func NewLocalProcess(cfg LocalProcessConfig) *LocalProcess {
	if len(cfg.WorkerCommand) == 0 {
		cfg.WorkerCommand = []string{DefaultWorkerCommand}
	}
	return &LocalProcess{
		config: cfg,
		logger: slog.With("component", "backend", "backend", "local-process"),
	}
}

// RunTaskArgs builds the worker argv for a task. The flag precedes the
// positional paths because the worker parses with stdlib flag, which stops
// at the first positional argument.
func RunTaskArgs(command []string, inputPath, outputPath string, deleteInput bool) []string {
	args := make([]string, 0, len(command)+3)
	args = append(args, command...)
	if deleteInput {
		args = append(args, "--delete-input")
	}
	args = append(args, inputPath, outputPath)
	return args
}

// SubmitTask spawns the worker and returns without waiting for it.
func (b *LocalProcess) SubmitTask(ctx context.Context, taskName, inputPath, outputPath string) (Handle, error) {
	args := RunTaskArgs(b.config.WorkerCommand, inputPath, outputPath, b.config.DeleteInput)
	b.logger.Debug("Starting worker process", "taskName", taskName, "args", args)

	// Deliberately not exec.CommandContext: a caller aborting the
	// orchestrator leaves already-submitted tasks running.
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, apperrors.SubmissionFailed(taskName, err)
	}

	// Reap the child when it exits so it never lingers as a zombie. The
	// exit status is logged and otherwise ignored.
	pid := cmd.Process.Pid
	go func() {
		if err := cmd.Wait(); err != nil {
			b.logger.Warn("Worker process exited with error", "taskName", taskName, "pid", pid, "error", err)
		}
	}()

	return processHandle(pid), nil
}

// Name implements Backend.
func (b *LocalProcess) Name() string {
	return "local-process"
}

type processHandle int

func (h processHandle) ID() string {
	return "pid:" + strconv.Itoa(int(h))
}

var _ Backend = (*LocalProcess)(nil)
