package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hal2001/kubeface/internal/apperrors"
	"github.com/hal2001/kubeface/internal/backend"
	"github.com/hal2001/kubeface/internal/naming"
	"github.com/hal2001/kubeface/internal/storage"
)

const testPrefix = "mem://jobs/batch"

func newTestStore() (*storage.MemoryDriver, *storage.Client) {
	driver := storage.NewMemoryDriver()
	return driver, storage.NewClient(driver, &storage.Retrier{MaxRetries: 1, Timer: noSleepTimer()})
}

func noSleepTimer() *instantTimer { return &instantTimer{} }

// instantTimer satisfies backoff.Timer without waiting.
type instantTimer struct{ ch chan time.Time }

func (t *instantTimer) Start(d time.Duration) {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	t.ch = ch
}
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.ch }

type stubHandle string

func (h stubHandle) ID() string { return string(h) }

// doublingBackend completes each task synchronously: it reads the integer
// input and writes input*2 to the output path.
type doublingBackend struct {
	store *storage.Client
}

func (b *doublingBackend) SubmitTask(ctx context.Context, taskName, inputPath, outputPath string) (backend.Handle, error) {
	in, err := naming.ParsePath(inputPath)
	if err != nil {
		return nil, err
	}
	data, err := b.store.Get(ctx, in)
	if err != nil {
		return nil, err
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	result, err := json.Marshal(v * 2)
	if err != nil {
		return nil, err
	}
	out, err := naming.ParsePath(outputPath)
	if err != nil {
		return nil, err
	}
	if err := b.store.Put(ctx, out, result, storage.PutOptions{}); err != nil {
		return nil, err
	}
	return stubHandle(taskName), nil
}

func (b *doublingBackend) Name() string { return "stub-doubler" }

// manualBackend records submissions; the test decides when each task's
// result object appears.
type manualBackend struct {
	store      *storage.Client
	pending    []pendingTask
	maxPending int
	submits    int
}

type pendingTask struct {
	taskName   string
	input      int
	outputPath string
}

func (b *manualBackend) SubmitTask(ctx context.Context, taskName, inputPath, outputPath string) (backend.Handle, error) {
	in, err := naming.ParsePath(inputPath)
	if err != nil {
		return nil, err
	}
	data, err := b.store.Get(ctx, in)
	if err != nil {
		return nil, err
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	b.pending = append(b.pending, pendingTask{taskName, v, outputPath})
	b.submits++
	if len(b.pending) > b.maxPending {
		b.maxPending = len(b.pending)
	}
	return stubHandle(taskName), nil
}

func (b *manualBackend) Name() string { return "stub-manual" }

// complete writes the doubled result for the pending task at index i.
func (b *manualBackend) complete(ctx context.Context, t *testing.T, i int) {
	t.Helper()
	p := b.pending[i]
	out, err := naming.ParsePath(p.outputPath)
	if err != nil {
		t.Fatalf("parse output path: %v", err)
	}
	result, _ := json.Marshal(p.input * 2)
	if err := b.store.Put(ctx, out, result, storage.PutOptions{}); err != nil {
		t.Fatalf("write result: %v", err)
	}
	b.pending = slices.Delete(b.pending, i, i+1)
}

// failingBackend refuses every submission.
type failingBackend struct{}

func (failingBackend) SubmitTask(ctx context.Context, taskName, inputPath, outputPath string) (backend.Handle, error) {
	return nil, apperrors.SubmissionFailed(taskName, fmt.Errorf("no capacity"))
}

func (failingBackend) Name() string { return "stub-failing" }

// boundedSleep fails the test if the loop polls more than limit times,
// otherwise invokes hook and returns immediately.
func boundedSleep(t *testing.T, limit int, hook func(polls int)) func(context.Context, time.Duration) error {
	t.Helper()
	polls := 0
	return func(ctx context.Context, d time.Duration) error {
		polls++
		if polls > limit {
			t.Fatalf("polling loop did not converge after %d polls", limit)
		}
		if hook != nil {
			hook(polls)
		}
		return nil
	}
}

func collectResults(t *testing.T, ctx context.Context, j *Job[int, int]) []int {
	t.Helper()
	seq, err := j.Results(ctx)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	var got []int
	for v, err := range seq {
		if err != nil {
			t.Fatalf("result iteration: %v", err)
		}
		got = append(got, v)
	}
	return got
}

func TestJobRunFiveTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()
	b := &doublingBackend{store: store}

	j, err := New[int, int](b, store, slices.Values([]int{0, 1, 2, 3, 4}), Config{
		MaxSimultaneousTasks: 2,
		StoragePrefix:        testPrefix,
		Sleep:                boundedSleep(t, 100, nil),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.State() != StateDone {
		t.Errorf("state = %s, want %s", j.State(), StateDone)
	}

	submitted := j.SubmittedTasks()
	if len(submitted) != 5 {
		t.Fatalf("submitted = %d tasks, want 5", len(submitted))
	}
	for i, name := range submitted {
		if want := naming.MakeTaskName(j.CacheKey(), i); name != want {
			t.Errorf("submitted[%d] = %q, want %q", i, name, want)
		}
	}
	if len(j.ReusedTasks()) != 0 {
		t.Errorf("reused = %v, want empty on first run", j.ReusedTasks())
	}

	got := collectResults(t, ctx, j)
	if !slices.Equal(got, []int{0, 2, 4, 6, 8}) {
		t.Errorf("results = %v, want [0 2 4 6 8]", got)
	}
}

func TestJobReusesExistingResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()
	tasks := []int{3, 1, 4, 1, 5}

	first, err := New[int, int](&doublingBackend{store: store}, store, slices.Values(tasks), Config{
		MaxSimultaneousTasks: 3,
		StoragePrefix:        testPrefix,
		CacheKey:             "reuse-key",
		Sleep:                boundedSleep(t, 100, nil),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := first.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Cleanup disabled: read results but leave the objects in place.
	if got := collectResults(t, ctx, first); !slices.Equal(got, []int{6, 2, 8, 2, 10}) {
		t.Errorf("first results = %v", got)
	}

	// The second run must not touch the backend at all.
	second, err := New[int, int](failingBackend{}, store, slices.Values(tasks), Config{
		MaxSimultaneousTasks: 3,
		StoragePrefix:        testPrefix,
		CacheKey:             "reuse-key",
		Sleep:                boundedSleep(t, 100, nil),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := second.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !slices.Equal(second.ReusedTasks(), second.SubmittedTasks()) {
		t.Errorf("reused %v != submitted %v", second.ReusedTasks(), second.SubmittedTasks())
	}
	if got := collectResults(t, ctx, second); !slices.Equal(got, []int{6, 2, 8, 2, 10}) {
		t.Errorf("second results = %v", got)
	}
}

func TestJobConcurrencyBound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()
	b := &manualBackend{store: store}

	var j *Job[int, int]
	j, err := New[int, int](b, store, slices.Values([]int{0, 1, 2, 3, 4}), Config{
		MaxSimultaneousTasks: 2,
		StoragePrefix:        testPrefix,
		Sleep: boundedSleep(t, 100, func(polls int) {
			// Complete the oldest in-flight task so the loop makes progress.
			if len(b.pending) > 0 {
				b.complete(ctx, t, 0)
			}
		}),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if b.maxPending > 2 {
		t.Errorf("in-flight tasks peaked at %d, bound is 2", b.maxPending)
	}
	if b.submits != 5 {
		t.Errorf("submits = %d, want 5", b.submits)
	}
	if got := collectResults(t, ctx, j); !slices.Equal(got, []int{0, 2, 4, 6, 8}) {
		t.Errorf("results = %v", got)
	}
}

func TestJobResultOrderIgnoresCompletionOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()
	b := &manualBackend{store: store}

	j, err := New[int, int](b, store, slices.Values([]int{10, 20, 30}), Config{
		MaxSimultaneousTasks: 3,
		StoragePrefix:        testPrefix,
		Sleep: boundedSleep(t, 100, func(polls int) {
			// Complete newest-first: completion order is the reverse of
			// submission order.
			if len(b.pending) > 0 {
				b.complete(ctx, t, len(b.pending)-1)
			}
		}),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := collectResults(t, ctx, j); !slices.Equal(got, []int{20, 40, 60}) {
		t.Errorf("results = %v, want submission order [20 40 60]", got)
	}
}

func TestResultsWhileRunningFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()
	b := &manualBackend{store: store}

	var j *Job[int, int]
	var premature error
	checked := false
	j, err := New[int, int](b, store, slices.Values([]int{1, 2}), Config{
		MaxSimultaneousTasks: 2,
		StoragePrefix:        testPrefix,
		Sleep: boundedSleep(t, 100, func(polls int) {
			if !checked {
				checked = true
				_, premature = j.Results(ctx)
			}
			if len(b.pending) > 0 {
				b.complete(ctx, t, 0)
			}
		}),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !checked {
		t.Fatal("drain loop never polled")
	}
	if !errors.Is(premature, apperrors.ErrJobNotComplete) {
		t.Errorf("mid-run Results error = %v, want ErrJobNotComplete", premature)
	}
}

func TestJobCleanupDeletesResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()
	b := &doublingBackend{store: store}

	j, err := New[int, int](b, store, slices.Values([]int{1, 2, 3}), Config{
		MaxSimultaneousTasks: 3,
		StoragePrefix:        testPrefix,
		CacheKey:             "cleanup-key",
		Cleanup:              true,
		Sleep:                boundedSleep(t, 100, nil),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := collectResults(t, ctx, j); !slices.Equal(got, []int{2, 4, 6}) {
		t.Errorf("results = %v", got)
	}

	// All result objects were deleted as they were consumed.
	prefix, _ := naming.ParsePath(testPrefix)
	keys, err := store.List(ctx, naming.TaskResultPrefixPath(prefix, "cleanup-key"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("result objects remain after cleanup: %v", keys)
	}

	// A second pass fails: the deleted results read as never-completed.
	if _, err := j.Results(ctx); err == nil {
		t.Fatal("expected error re-reading consumed results")
	}
}

func TestJobSubmissionFailureAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()

	j, err := New[int, int](failingBackend{}, store, slices.Values([]int{1}), Config{
		MaxSimultaneousTasks: 1,
		StoragePrefix:        testPrefix,
		Sleep:                boundedSleep(t, 100, nil),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = j.Run(ctx)
	if !errors.Is(err, apperrors.ErrSubmissionFailed) {
		t.Fatalf("run error = %v, want ErrSubmissionFailed", err)
	}
	if j.State() != StateFailed {
		t.Errorf("state = %s, want %s", j.State(), StateFailed)
	}
}

func TestJobStorageFailureAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewClient(brokenDriver{}, &storage.Retrier{MaxRetries: 1, Timer: noSleepTimer()})

	j, err := New[int, int](&doublingBackend{store: store}, store, slices.Values([]int{1}), Config{
		MaxSimultaneousTasks: 1,
		StoragePrefix:        testPrefix,
		Sleep:                boundedSleep(t, 100, nil),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = j.Run(ctx)
	if !errors.Is(err, apperrors.ErrStorageUnavailable) {
		t.Fatalf("run error = %v, want ErrStorageUnavailable", err)
	}
	if j.State() != StateFailed {
		t.Errorf("state = %s, want %s", j.State(), StateFailed)
	}
}

func TestJobRunTwiceFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()

	j, err := New[int, int](&doublingBackend{store: store}, store, slices.Values([]int{1}), Config{
		MaxSimultaneousTasks: 1,
		StoragePrefix:        testPrefix,
		Sleep:                boundedSleep(t, 100, nil),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := j.Run(ctx); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("second run error = %v, want ErrInvalidArgument", err)
	}
}

func TestJobValidation(t *testing.T) {
	t.Parallel()
	_, store := newTestStore()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero concurrency", Config{MaxSimultaneousTasks: 0, StoragePrefix: testPrefix}},
		{"bad prefix", Config{MaxSimultaneousTasks: 1, StoragePrefix: "not-a-path"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New[int, int](&doublingBackend{store: store}, store, slices.Values([]int{}), tt.cfg)
			if !errors.Is(err, apperrors.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestJobSnapshotFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, store := newTestStore()
	rec := &recordingReporter{}

	j, err := New[int, int](&doublingBackend{store: store}, store, slices.Values([]int{7, 8}), Config{
		MaxSimultaneousTasks: 2,
		StoragePrefix:        testPrefix,
		CacheKey:             "snap-key",
		NumTasks:             2,
		Reporter:             rec,
		Sleep:                boundedSleep(t, 100, nil),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := j.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	snaps := rec.all()
	if len(snaps) < 2 {
		t.Fatalf("expected at least one snapshot per submission, got %d", len(snaps))
	}
	last := snaps[len(snaps)-1]
	if last.Backend != "stub-doubler" {
		t.Errorf("backend = %q", last.Backend)
	}
	if last.CacheKey != "snap-key" || last.JobName != naming.MakeJobName("snap-key") {
		t.Errorf("identity fields wrong: %+v", last)
	}
	if last.MaxSimultaneousTasks != 2 || last.NumTasks != 2 {
		t.Errorf("config fields wrong: %+v", last)
	}
	if last.StartTime.IsZero() {
		t.Error("start time not set")
	}
	if len(last.SubmittedTasks) != 2 {
		t.Errorf("submitted = %v", last.SubmittedTasks)
	}
}

type recordingReporter struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingReporter) Update(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recordingReporter) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.snaps)
}

// brokenDriver fails every operation.
type brokenDriver struct{}

func (brokenDriver) Put(ctx context.Context, path naming.Path, data []byte, opts storage.PutOptions) error {
	return fmt.Errorf("store down")
}
func (brokenDriver) Get(ctx context.Context, path naming.Path) ([]byte, error) {
	return nil, fmt.Errorf("store down")
}
func (brokenDriver) Delete(ctx context.Context, path naming.Path) error {
	return fmt.Errorf("store down")
}
func (brokenDriver) Copy(ctx context.Context, src, dst naming.Path) error {
	return fmt.Errorf("store down")
}
func (brokenDriver) List(ctx context.Context, prefix naming.Path) ([]string, error) {
	return nil, fmt.Errorf("store down")
}
