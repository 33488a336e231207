package intake

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Previewer issues and releases preview handles for image items.
type Previewer interface {
	Create(path string) (string, error)
	Revoke(ref string) error
}

// PreviewRegistry is an in-memory Previewer. Handles look like
// "preview://<uuid>" and resolve to the source path until revoked.
type PreviewRegistry struct {
	mu      sync.Mutex
	refs    map[string]string
	revoked int
}

// NewPreviewRegistry creates an empty registry.
func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{refs: make(map[string]string)}
}

// Create registers a preview for path.
func (r *PreviewRegistry) Create(path string) (string, error) {
	ref := "preview://" + uuid.New().String()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[ref] = path
	return ref, nil
}

// Revoke releases a handle. Revoking an unknown or already revoked handle is an error.
func (r *PreviewRegistry) Revoke(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.refs[ref]; !ok {
		return fmt.Errorf("preview not found: %s", ref)
	}
	delete(r.refs, ref)
	r.revoked++
	return nil
}

// Resolve returns the path behind a live handle.
func (r *PreviewRegistry) Resolve(ref string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.refs[ref]
	return path, ok
}

// Live returns the number of unreleased handles.
func (r *PreviewRegistry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}

// Revoked returns how many handles have been released so far.
func (r *PreviewRegistry) Revoked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked
}
