package naming

import (
	"fmt"
	"strings"

	"github.com/hal2001/kubeface/internal/apperrors"
)

// Path is a parsed object-store location of the form <scheme>://<bucket>/<key>.
type Path struct {
	Scheme string
	Bucket string
	Key    string
}

// ParsePath splits a storage URL into its scheme, bucket, and key. The key
// may be empty (a bare bucket, usable as a list prefix).
func ParsePath(raw string) (Path, error) {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return Path{}, apperrors.InvalidArgument("path", fmt.Sprintf("not a storage path: %s", raw))
	}
	scheme := raw[:i]
	rest := raw[i+len("://"):]
	if rest == "" {
		return Path{}, apperrors.InvalidArgument("path", fmt.Sprintf("missing bucket: %s", raw))
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Path{}, apperrors.InvalidArgument("path", fmt.Sprintf("missing bucket: %s", raw))
	}
	return Path{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// String reassembles the path URL. Inverse of ParsePath.
func (p Path) String() string {
	if p.Key == "" {
		return p.Scheme + "://" + p.Bucket
	}
	return p.Scheme + "://" + p.Bucket + "/" + p.Key
}

// Join appends a key component to the path.
func (p Path) Join(elem string) Path {
	joined := p
	if joined.Key == "" {
		joined.Key = elem
	} else {
		joined.Key = strings.TrimSuffix(joined.Key, "/") + "/" + elem
	}
	return joined
}

// TaskInputPath returns the full storage path for a task's input payload
// under the given job prefix.
func TaskInputPath(prefix Path, taskName string) Path {
	return prefix.Join(TaskInputName(taskName))
}

// TaskResultPath returns the full storage path for a task's result under
// the given job prefix.
func TaskResultPath(prefix Path, taskName string) Path {
	return prefix.Join(TaskResultName(taskName))
}

// TaskResultPrefixPath returns the storage path prefix covering all result
// paths of tasks sharing cacheKey.
func TaskResultPrefixPath(prefix Path, cacheKey string) Path {
	return prefix.Join(TaskResultPrefix(cacheKey))
}
