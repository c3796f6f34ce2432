package storage

import "sync"

// Overlay buffers writes on top of a base Database until Commit. The runtime
// opens one per call frame so a revert is simply dropping the overlay;
// nested frames stack overlays on overlays.
type Overlay struct {
	mu      sync.RWMutex
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay stacks a fresh write buffer on base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	o.writes[string(key)] = buf
	delete(o.deletes, string(key))
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	if value, ok := o.writes[string(key)]; ok {
		o.mu.RUnlock()
		return value, nil
	}
	if _, ok := o.deletes[string(key)]; ok {
		o.mu.RUnlock()
		return nil, ErrNotFound
	}
	o.mu.RUnlock()
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	if _, ok := o.writes[string(key)]; ok {
		o.mu.RUnlock()
		return true, nil
	}
	if _, ok := o.deletes[string(key)]; ok {
		o.mu.RUnlock()
		return false, nil
	}
	o.mu.RUnlock()
	return o.base.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.writes, string(key))
	o.deletes[string(key)] = struct{}{}
	return nil
}

// Close satisfies the Database interface; the base stays open.
func (o *Overlay) Close() {}

// Commit flushes the buffered writes and deletes into the base.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key := range o.deletes {
		if err := o.base.Delete([]byte(key)); err != nil {
			return err
		}
	}
	for key, value := range o.writes {
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}
