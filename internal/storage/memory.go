package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hal2001/kubeface/internal/naming"
)

// MemoryDriver is an in-process Driver backed by a map. It serves tests
// and single-process dry runs; it cannot be shared across worker
// processes.
type MemoryDriver struct {
	mu      sync.RWMutex
	objects map[string][]byte // "<bucket>/<key>" -> data
}

// NewMemoryDriver creates an empty in-memory store.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{objects: make(map[string][]byte)}
}

func memKey(p naming.Path) string {
	return p.Bucket + "/" + p.Key
}

func (d *MemoryDriver) Put(ctx context.Context, path naming.Path, data []byte, opts PutOptions) error {
	// ACL entries are ignored: the store has no access-control concept.
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	d.objects[memKey(path)] = buf
	return nil
}

func (d *MemoryDriver) Get(ctx context.Context, path naming.Path) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.objects[memKey(path)]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path.String())
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (d *MemoryDriver) Delete(ctx context.Context, path naming.Path) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, memKey(path))
	return nil
}

func (d *MemoryDriver) Copy(ctx context.Context, src, dst naming.Path) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.objects[memKey(src)]
	if !ok {
		return fmt.Errorf("object not found: %s", src.String())
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	d.objects[memKey(dst)] = buf
	return nil
}

func (d *MemoryDriver) List(ctx context.Context, prefix naming.Path) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var keys []string
	bucketPrefix := prefix.Bucket + "/"
	for k := range d.objects {
		if !strings.HasPrefix(k, bucketPrefix) {
			continue
		}
		key := strings.TrimPrefix(k, bucketPrefix)
		if strings.HasPrefix(key, prefix.Key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports the number of stored objects.
func (d *MemoryDriver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.objects)
}

var _ Driver = (*MemoryDriver)(nil)
