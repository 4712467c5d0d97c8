// Package syncinfo persists information about the last queue drain.
package syncinfo

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// SyncInfo describes the outcome of the most recent drain.
type SyncInfo struct {
	// LastSync is when the drain finished.
	LastSync time.Time `json:"last_sync"`
	// Synced is how many queued operations were applied and removed.
	Synced int `json:"synced"`
	// Failed is how many operations stayed queued for the next drain.
	Failed int `json:"failed"`
	// DeadLettered is how many operations were moved to the dead-letter
	// set during the drain.
	DeadLettered int `json:"dead_lettered"`
}

// Manager manages access to and updates of the drain record. It is safe
// for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	filename string
	current  SyncInfo
}

// NewManager creates a Manager storing its record at filename. An
// existing record is loaded so the last sync time survives restarts.
func NewManager(filename string) (*Manager, error) {
	m := &Manager{filename: filename}
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &m.current); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordDrain stores the outcome of a finished drain and writes it to
// the backing file.
func (m *Manager) RecordDrain(info SyncInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = info

	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(m.filename, data, 0o644)
}

// Current returns the most recent drain record.
func (m *Manager) Current() SyncInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
