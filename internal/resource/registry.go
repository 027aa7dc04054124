package resource

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrResourceExists is returned when a name is already held.
var ErrResourceExists = errors.New("resource: name already in use")

// AcquireError reports a shared resource that could not be created. It is
// fatal for startup.
type AcquireError struct {
	Name string
	Err  error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Name, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// IsAcquireError reports whether err is (or wraps) an AcquireError.
func IsAcquireError(err error) bool {
	var ae *AcquireError
	return errors.As(err, &ae)
}

// Registry is a namespace of exclusively held resource names, the analogue of
// the system-wide shared memory and message queue namespace. A name stays held
// until it is released, so a leaked resource makes the next run fail to start.
type Registry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// DefaultRegistry is the process-wide namespace.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty namespace.
func NewRegistry() *Registry {
	return &Registry{held: make(map[string]struct{})}
}

// Acquire claims name exclusively.
func (r *Registry) Acquire(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.held[name]; ok {
		return &AcquireError{Name: name, Err: ErrResourceExists}
	}
	r.held[name] = struct{}{}
	return nil
}

// Release frees name. It reports whether the name was held.
func (r *Registry) Release(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.held[name]; !ok {
		return false
	}
	delete(r.held, name)
	return true
}

// Held reports whether name is currently claimed.
func (r *Registry) Held(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[name]
	return ok
}

// Names returns the held names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.held))
	for n := range r.held {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
