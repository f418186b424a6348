// Package backend defines the task-execution contract consumed by the
// orchestrator, plus the reference implementations.
package backend

import "context"

// Handle is an opaque reference to a started execution (a process ID, a
// container ID). The orchestrator never uses it for completion tracking;
// completion is observed only through storage listings.
type Handle interface {
	ID() string
}

// Backend arranges asynchronous execution of a single task.
//
// SubmitTask must return promptly, without waiting for the task to finish.
// On success the execution is expected to eventually write a result object
// to outputPath; there is no completion callback of any kind. A backend
// may delete the input object once the worker has read it, but must not
// rely on the orchestrator to do so.
//
// Errors starting execution must not have consumed anything beyond the
// resources of this one submission.
type Backend interface {
	SubmitTask(ctx context.Context, taskName, inputPath, outputPath string) (Handle, error)

	// Name identifies the backend in status snapshots and logs.
	Name() string
}
