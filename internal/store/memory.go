package store

import (
	"context"
	"sync"
)

// Memory is a process-local KV used when no database path is configured
// and in tests.
type Memory struct {
	mu    sync.RWMutex
	prefs map[string]string
	data  map[int]map[string]string
}

var _ KV = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		prefs: make(map[string]string),
		data:  make(map[int]map[string]string),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.prefs[key]
	return v, ok, nil
}

func (m *Memory) ActionData(_ context.Context, actionID int) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[actionID]
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Edit(_ context.Context, fn func(tx *Tx) error) error {
	var tx Tx
	if err := fn(&tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range tx.ops {
		switch o.kind {
		case opPut:
			m.prefs[o.key] = o.value
		case opRemove:
			delete(m.prefs, o.key)
		case opClear:
			m.prefs = make(map[string]string)
		case opPutData:
			m.data[o.actionID] = o.data
		case opDeleteData:
			delete(m.data, o.actionID)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Keys returns the number of stored preferences.
func (m *Memory) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.prefs)
}
