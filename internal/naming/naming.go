// Package naming derives deterministic identifiers and storage keys for
// jobs and tasks. All derivations are pure: resubmitting the same job
// configuration regenerates identical task names, which is what enables
// result reuse across runs.
package naming

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hal2001/kubeface/internal/apperrors"
)

const (
	taskSep      = "-task-"
	inputPrefix  = "input-"
	resultPrefix = "result-"
)

// MakeCacheKey generates a fresh globally-unique cache key. Two runs that
// should share results must be given the same key explicitly; a generated
// key never collides with another run's.
func MakeCacheKey() string {
	stamp := time.Now().UTC().Format("20060102T150405")
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return stamp + "-" + token
}

// MakeJobName derives a storage-path-friendly label for a job.
func MakeJobName(cacheKey string) string {
	return "job-" + cacheKey
}

// MakeTaskName derives the name of the index-th task of a job. It is
// injective in index for a fixed cache key.
func MakeTaskName(cacheKey string, index int) string {
	return fmt.Sprintf("%s%s%09d", cacheKey, taskSep, index)
}

// TaskInputName returns the storage key component for a task's serialized
// input payload.
func TaskInputName(taskName string) string {
	return inputPrefix + taskName
}

// TaskResultName returns the storage key component for a task's serialized
// result.
func TaskResultName(taskName string) string {
	return resultPrefix + taskName
}

// TaskResultPrefix returns a key prefix covering exactly the result names
// of all tasks sharing cacheKey.
func TaskResultPrefix(cacheKey string) string {
	return resultPrefix + cacheKey + taskSep
}

// TaskNameFromResultKey inverts TaskResultName. The key may be a full
// object key; only its last path segment is considered. Round-trips for
// every key produced by TaskResultName.
func TaskNameFromResultKey(key string) (string, error) {
	base := key
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		base = key[i+1:]
	}
	if !strings.HasPrefix(base, resultPrefix) {
		return "", apperrors.InvalidArgument("key", fmt.Sprintf("not a task result key: %s", key))
	}
	name := strings.TrimPrefix(base, resultPrefix)
	if !strings.Contains(name, taskSep) {
		return "", apperrors.InvalidArgument("key", fmt.Sprintf("not a task result key: %s", key))
	}
	return name, nil
}
