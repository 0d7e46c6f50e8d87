package filelock

import "sync"

// Registry maps file names to their reader/writer locks. mu only guards the map and
// is never held while waiting on one of the file locks.
type Registry struct {
	locks map[string]*sync.RWMutex
	mu    sync.Mutex
}

func New(size int) *Registry {
	return &Registry{
		locks: make(map[string]*sync.RWMutex, size),
	}
}

// Register returns the lock of name, creating it when missing
func (r *Registry) Register(name string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[name]; ok {
		return l
	}
	l := &sync.RWMutex{}
	r.locks[name] = l
	return l
}

// Get returns the lock of name
func (r *Registry) Get(name string) (*sync.RWMutex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	return l, ok
}

// Current reports whether l is still the registered lock of name
func (r *Registry) Current(name string, l *sync.RWMutex) bool {
	cur, ok := r.Get(name)
	return ok && cur == l
}

// Retire removes the lock of name if it is still l
func (r *Registry) Retire(name string, l *sync.RWMutex) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.locks[name]; ok && cur == l {
		delete(r.locks, name)
		return true
	}
	return false
}

// Len returns number of registered locks
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
