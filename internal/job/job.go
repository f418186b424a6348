// Package job implements the orchestrator: it consumes a lazy task
// source, uploads inputs, hands execution to a Backend, and detects
// completion purely by polling object-storage listings. The object store
// is the only synchronization primitive between the orchestrator and its
// workers; there is no callback channel of any kind.
package job

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/hal2001/kubeface/internal/apperrors"
	"github.com/hal2001/kubeface/internal/backend"
	"github.com/hal2001/kubeface/internal/naming"
	"github.com/hal2001/kubeface/internal/storage"
)

// Job schedules one run of a task collection. T is the task payload type,
// R the result type produced by workers.
//
// A Job is single-owner: only its own Run/Results calls mutate it, and it
// is discarded after results are consumed. Multiple Job instances may
// safely share a cache key; puts are overwrite-idempotent, so the worst
// case is a redundant upload.
type Job[T, R any] struct {
	backend backend.Backend
	store   *storage.Client
	next    func() (T, bool)
	stop    func()
	config  Config

	prefix    naming.Path
	cacheKey  string
	jobName   string
	startTime time.Time
	state     State

	submitted []string // task names in submission order
	reused    []string // task names whose result pre-existed at submission

	logger *slog.Logger
}

// New binds a task source and configuration into a Job. The source is
// single-pass: it is pulled exactly once per task, in index order.
func New[T, R any](b backend.Backend, store *storage.Client, tasks iter.Seq[T], cfg Config) (*Job[T, R], error) {
	if b == nil {
		return nil, apperrors.InvalidArgument("backend", "backend is required")
	}
	if store == nil {
		return nil, apperrors.InvalidArgument("storage", "storage client is required")
	}
	if cfg.MaxSimultaneousTasks < 1 {
		return nil, apperrors.InvalidArgument("maxSimultaneousTasks", "max simultaneous tasks must be >= 1")
	}
	prefix, err := naming.ParsePath(cfg.StoragePrefix)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	cacheKey := cfg.CacheKey
	if cacheKey == "" {
		cacheKey = naming.MakeCacheKey()
	}
	jobName := naming.MakeJobName(cacheKey)

	next, stop := iter.Pull(tasks)
	j := &Job[T, R]{
		backend:   b,
		store:     store,
		next:      next,
		stop:      stop,
		config:    cfg,
		prefix:    prefix,
		cacheKey:  cacheKey,
		jobName:   jobName,
		startTime: time.Now(),
		state:     StateCreated,
		logger:    slog.With("component", "job", "jobName", jobName),
	}
	j.logger.Info("Job created",
		"backend", b.Name(),
		"cacheKey", cacheKey,
		"maxSimultaneousTasks", cfg.MaxSimultaneousTasks,
		"storagePrefix", cfg.StoragePrefix,
	)
	return j, nil
}

// CacheKey returns the key scoping this run's result reuse.
func (j *Job[T, R]) CacheKey() string { return j.cacheKey }

// Name returns the derived job name.
func (j *Job[T, R]) Name() string { return j.jobName }

// State returns the current lifecycle state.
func (j *Job[T, R]) State() State { return j.state }

// SubmittedTasks returns the task names in submission order.
func (j *Job[T, R]) SubmittedTasks() []string {
	out := make([]string, len(j.submitted))
	copy(out, j.submitted)
	return out
}

// ReusedTasks returns the task names whose results pre-existed.
func (j *Job[T, R]) ReusedTasks() []string {
	out := make([]string, len(j.reused))
	copy(out, j.reused)
	return out
}

// Run drives the job to completion: it polls storage for completed
// results, keeps up to MaxSimultaneousTasks in flight, and returns once
// the task source is exhausted and every submitted task has a result
// object. Any storage or submission error aborts the whole run; re-running
// with the same cache key reuses the outputs that did complete.
func (j *Job[T, R]) Run(ctx context.Context) error {
	if j.state != StateCreated {
		return apperrors.InvalidArgument("state", fmt.Sprintf("job already ran (state %s)", j.state))
	}
	j.state = StateRunning
	defer j.stop()

	for {
		completed, err := j.completedTasks(ctx)
		if err != nil {
			return j.fail(err)
		}
		running := j.runningTasks(completed)
		if j.config.Metrics != nil {
			j.config.Metrics.RecordPoll(ctx, len(running))
		}

		slots := j.config.MaxSimultaneousTasks - len(running)
		if slots <= 0 {
			if err := j.config.Sleep(ctx, j.config.PollInterval); err != nil {
				return j.fail(err)
			}
			continue
		}

		j.logger.Debug("Submitting tasks", "slots", slots, "running", len(running))
		for range slots {
			submitted, err := j.submitOne(ctx, completed)
			if err != nil {
				return j.fail(err)
			}
			if !submitted {
				return j.drain(ctx)
			}
		}
	}
}

// submitOne pulls the next task and submits it, reusing a pre-existing
// result when one is already in storage. Returns false when the source is
// exhausted.
func (j *Job[T, R]) submitOne(ctx context.Context, completed map[string]bool) (bool, error) {
	task, ok := j.next()
	if !ok {
		return false, nil
	}

	// Indices are assigned strictly in pull order, reused tasks included,
	// so names are stable regardless of how many tasks are reused.
	taskName := naming.MakeTaskName(j.cacheKey, len(j.submitted))
	outputPath := naming.TaskResultPath(j.prefix, taskName)

	if completed[taskName] {
		j.logger.Info("Using existing result", "taskName", taskName, "resultPath", outputPath.String())
		j.reused = append(j.reused, taskName)
		j.submitted = append(j.submitted, taskName)
		if j.config.Metrics != nil {
			j.config.Metrics.RecordTaskReused(ctx)
		}
		return true, nil
	}

	data, err := j.config.Codec.Marshal(task)
	if err != nil {
		return false, fmt.Errorf("failed to encode task %s: %w", taskName, err)
	}
	inputPath := naming.TaskInputPath(j.prefix, taskName)
	j.logger.Info("Uploading task input", "taskName", taskName, "path", inputPath.String(), "bytes", len(data))
	if err := j.store.Put(ctx, inputPath, data, storage.PutOptions{}); err != nil {
		return false, err
	}

	handle, err := j.backend.SubmitTask(ctx, taskName, inputPath.String(), outputPath.String())
	if err != nil {
		return false, err
	}
	j.logger.Debug("Task submitted", "taskName", taskName, "handle", handle.ID())

	j.submitted = append(j.submitted, taskName)
	if j.config.Metrics != nil {
		j.config.Metrics.RecordTaskSubmitted(ctx, j.backend.Name())
	}
	j.publish(completed)
	return true, nil
}

// drain waits for all submitted tasks to complete after the source is
// exhausted. A task whose worker died without writing output stalls here
// forever; there is deliberately no task-level timeout in the core.
func (j *Job[T, R]) drain(ctx context.Context) error {
	j.state = StateDraining
	for {
		completed, err := j.completedTasks(ctx)
		if err != nil {
			return j.fail(err)
		}
		j.publish(completed)

		running := j.runningTasks(completed)
		if j.config.Metrics != nil {
			j.config.Metrics.RecordPoll(ctx, len(running))
		}
		if len(running) == 0 {
			j.state = StateDone
			j.logger.Info("Job complete", "submitted", len(j.submitted), "reused", len(j.reused))
			return nil
		}

		j.logger.Info("Waiting for tasks to complete", "running", len(running))
		if err := j.config.Sleep(ctx, j.config.PollInterval); err != nil {
			return j.fail(err)
		}
	}
}

// Results returns the decoded results in submission order. It fails with
// ErrJobNotComplete while any submitted task is still running.
//
// The sequence is lazy and single-use: each result object is downloaded
// when reached and, when Cleanup is set, deleted right after decoding.
// Re-iterating after cleanup will fail for already-consumed entries.
func (j *Job[T, R]) Results(ctx context.Context) (iter.Seq2[R, error], error) {
	completed, err := j.completedTasks(ctx)
	if err != nil {
		return nil, err
	}
	if running := j.runningTasks(completed); len(running) > 0 {
		return nil, apperrors.JobNotComplete(len(running))
	}

	return func(yield func(R, error) bool) {
		var zero R
		for _, taskName := range j.submitted {
			path := naming.TaskResultPath(j.prefix, taskName)
			data, err := j.store.Get(ctx, path)
			if err != nil {
				yield(zero, err)
				return
			}
			var result R
			if err := j.config.Codec.Unmarshal(data, &result); err != nil {
				yield(zero, fmt.Errorf("failed to decode result %s: %w", taskName, err))
				return
			}
			if j.config.Cleanup {
				if err := j.store.Delete(ctx, path); err != nil {
					yield(zero, err)
					return
				}
			}
			if !yield(result, nil) {
				return
			}
		}
	}, nil
}

// completedTasks recomputes the completed set from a storage listing. The
// presence of a result object is the sole source of truth for "done".
func (j *Job[T, R]) completedTasks(ctx context.Context) (map[string]bool, error) {
	resultPrefix := naming.TaskResultPrefixPath(j.prefix, j.cacheKey)
	keys, err := j.store.List(ctx, resultPrefix)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool, len(keys))
	for _, key := range keys {
		taskName, err := naming.TaskNameFromResultKey(key)
		if err != nil {
			j.logger.Debug("Ignoring foreign key under result prefix", "key", key)
			continue
		}
		completed[taskName] = true
	}
	return completed, nil
}

// runningTasks is the submitted set minus the completed set, in submission
// order.
func (j *Job[T, R]) runningTasks(completed map[string]bool) []string {
	var running []string
	for _, taskName := range j.submitted {
		if !completed[taskName] {
			running = append(running, taskName)
		}
	}
	return running
}

// Status assembles a snapshot from a freshly listed completed set.
func (j *Job[T, R]) Status(ctx context.Context) (Snapshot, error) {
	completed, err := j.completedTasks(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return j.snapshot(completed), nil
}

func (j *Job[T, R]) snapshot(completed map[string]bool) Snapshot {
	completedNames := make([]string, 0, len(completed))
	for _, taskName := range j.submitted {
		if completed[taskName] {
			completedNames = append(completedNames, taskName)
		}
	}
	return Snapshot{
		Backend:              j.backend.Name(),
		JobName:              j.jobName,
		CacheKey:             j.cacheKey,
		MaxSimultaneousTasks: j.config.MaxSimultaneousTasks,
		NumTasks:             j.config.NumTasks,
		StartTime:            j.startTime,
		State:                j.state,
		SubmittedTasks:       j.SubmittedTasks(),
		CompletedTasks:       completedNames,
		RunningTasks:         j.runningTasks(completed),
		ReusedTasks:          j.ReusedTasks(),
	}
}

func (j *Job[T, R]) publish(completed map[string]bool) {
	if j.config.Reporter == nil {
		return
	}
	j.config.Reporter.Update(j.snapshot(completed))
}

func (j *Job[T, R]) fail(err error) error {
	j.state = StateFailed
	j.logger.Error("Job failed", "error", err)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
