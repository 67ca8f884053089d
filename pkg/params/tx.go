package params

import "sync"

// Tx serializes multi-call updates against a Store.
//
// Every RPC handler body and every diagnostic result body runs inside Do, so
// the store is never observed between two writes of the same operation. The
// callback must not call Do again.
type Tx struct {
	mu    sync.Mutex
	store Store
}

// NewTx creates a transaction guard for store.
func NewTx(store Store) *Tx {
	return &Tx{store: store}
}

// Do runs fn with exclusive access to the store.
func (t *Tx) Do(fn func(Store)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.store)
}

// Store returns the guarded store for single, unguarded reads.
func (t *Tx) Store() Store {
	return t.store
}

// WriteSet is the set of paths touched by one SetParameterValues call.
type WriteSet map[string]struct{}

// NewWriteSet creates a write set holding paths.
func NewWriteSet(paths ...string) WriteSet {
	ws := make(WriteSet, len(paths))
	for _, p := range paths {
		ws.Add(p)
	}
	return ws
}

// Add marks path as written.
func (w WriteSet) Add(path string) {
	w[path] = struct{}{}
}

// Has reports whether path was written.
func (w WriteSet) Has(path string) bool {
	_, ok := w[path]
	return ok
}

// HasAny reports whether any of prefix+field was written.
func (w WriteSet) HasAny(prefix string, fields ...string) bool {
	for _, f := range fields {
		if w.Has(prefix + f) {
			return true
		}
	}
	return false
}
