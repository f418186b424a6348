// Package storage provides the orchestrator's only I/O surface: a small
// set of object-store primitives wrapped in a bounded-retry policy.
package storage

import (
	"context"

	"github.com/hal2001/kubeface/internal/naming"
)

// PutOptions carries optional per-object access control entries. Semantics
// are store-specific: drivers apply them best-effort where the store
// supports per-object grants and ignore them where it does not.
type PutOptions struct {
	Readers []string // identities granted read access
	Owners  []string // identities granted full control
}

// Driver is the raw object-store contract. Each method maps to a single
// store call; retries and error classification live in Client, not here.
//
// List must transparently follow store-side pagination and return the
// complete set of object keys under the prefix as one slice.
type Driver interface {
	Put(ctx context.Context, path naming.Path, data []byte, opts PutOptions) error
	Get(ctx context.Context, path naming.Path) ([]byte, error)
	Delete(ctx context.Context, path naming.Path) error
	Copy(ctx context.Context, src, dst naming.Path) error
	List(ctx context.Context, prefix naming.Path) ([]string, error)
}
