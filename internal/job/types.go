package job

import (
	"context"
	"encoding/json"
	"time"
)

// State of a job instance. Transitions are linear:
// Created -> Running -> Draining -> Done, with Failed reachable from
// Running and Draining when a storage or submission error propagates.
type State string

const (
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Config holds the job's tunables.
type Config struct {
	// MaxSimultaneousTasks bounds in-flight tasks as measured by storage
	// state at poll time. Must be >= 1. The bound is soft: races between
	// poll and completion can transiently exceed it by at most one
	// submission batch.
	MaxSimultaneousTasks int

	// StoragePrefix is the object-store path under which all task inputs
	// and results live, e.g. "s3://bucket/jobs".
	StoragePrefix string

	// CacheKey scopes result reuse across runs. Generated fresh when
	// empty; two runs sharing a key reuse each other's completed outputs.
	CacheKey string

	// NumTasks is the expected task count, informational only (0 when
	// unknown).
	NumTasks int

	// Cleanup deletes each result object immediately after it is decoded
	// during result retrieval.
	Cleanup bool

	// PollInterval is the sleep between completion polls. Default 5s.
	PollInterval time.Duration

	// Codec serializes task payloads and deserializes results. Default
	// JSONCodec.
	Codec Codec

	// Reporter receives status snapshots. Optional.
	Reporter Reporter

	// Metrics records orchestration metrics. Optional.
	Metrics MetricsRecorder

	// Sleep is the suspension primitive of the polling loop, injectable
	// so tests can run the loop without real delays. Default sleeps on a
	// timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPollInterval is the sleep between completion polls.
const DefaultPollInterval = 5 * time.Second

// Snapshot is a point-in-time view of a job, published to the Reporter
// after every real submission and during the drain wait.
type Snapshot struct {
	Backend              string    `json:"backend"`
	JobName              string    `json:"jobName"`
	CacheKey             string    `json:"cacheKey"`
	MaxSimultaneousTasks int       `json:"maxSimultaneousTasks"`
	NumTasks             int       `json:"numTasks,omitempty"`
	StartTime            time.Time `json:"startTime"`
	State                State     `json:"state"`
	SubmittedTasks       []string  `json:"submittedTasks"`
	CompletedTasks       []string  `json:"completedTasks"`
	RunningTasks         []string  `json:"runningTasks"`
	ReusedTasks          []string  `json:"reusedTasks"`
}

// Reporter consumes status snapshots. Implementations must not block the
// polling loop; see AsyncReporter.
type Reporter interface {
	Update(snapshot Snapshot)
}

// MetricsRecorder is an optional interface for recording job metrics.
type MetricsRecorder interface {
	RecordTaskSubmitted(ctx context.Context, backend string)
	RecordTaskReused(ctx context.Context)
	RecordPoll(ctx context.Context, running int)
}

// Codec serializes task payloads and deserializes results. The wire format
// is a collaborator concern; the orchestrator only moves bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
