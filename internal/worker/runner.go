// Package worker implements the storage side of a worker process: fetch
// and decode the task input, run a handler, and upload the result object
// whose presence signals completion to the orchestrator.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hal2001/kubeface/internal/naming"
	"github.com/hal2001/kubeface/internal/storage"
)

// Handler executes one task payload and returns the serialized result.
// A handler error means no result object is written: the orchestrator
// will see the task as still running until the job is re-run.
type Handler func(ctx context.Context, input []byte) ([]byte, error)

// Runner drives one task execution end to end.
type Runner struct {
	store       *storage.Client
	handler     Handler
	deleteInput bool
	logger      *slog.Logger
}

// NewRunner creates a runner. When deleteInput is set the input object is
// removed after a successful result upload.
func NewRunner(store *storage.Client, handler Handler, deleteInput bool) *Runner {
	return &Runner{
		store:       store,
		handler:     handler,
		deleteInput: deleteInput,
		logger:      slog.With("component", "worker"),
	}
}

// Run fetches the input at inputPath, executes the handler, and uploads
// its result to outputPath. The upload happens only on handler success;
// writing the output is the one and only completion signal.
func (r *Runner) Run(ctx context.Context, inputPath, outputPath string) error {
	in, err := naming.ParsePath(inputPath)
	if err != nil {
		return err
	}
	out, err := naming.ParsePath(outputPath)
	if err != nil {
		return err
	}

	r.logger.Info("Fetching task input", "path", inputPath)
	input, err := r.store.Get(ctx, in)
	if err != nil {
		return err
	}

	result, err := r.handler(ctx, input)
	if err != nil {
		return fmt.Errorf("task handler failed: %w", err)
	}

	r.logger.Info("Uploading task result", "path", outputPath, "bytes", len(result))
	if err := r.store.Put(ctx, out, result, storage.PutOptions{}); err != nil {
		return err
	}

	if r.deleteInput {
		if err := r.store.Delete(ctx, in); err != nil {
			// The result is already in place; a leftover input object is
			// harmless.
			r.logger.Warn("Failed to delete task input", "path", inputPath, "error", err)
		}
	}
	return nil
}
