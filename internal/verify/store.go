package verify

import (
	"sync"
	"time"
)

// Record is a granted verification. There is at most one per action.
type Record struct {
	Action    string        `json:"action"`
	GrantedAt time.Time     `json:"granted_at"`
	TTL       time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the grant stops being valid.
func (r Record) ExpiresAt() time.Time {
	return r.GrantedAt.Add(r.TTL)
}

func (r Record) valid() bool {
	return r.Action != "" && !r.GrantedAt.IsZero() && r.TTL >= 0
}

// Store persists verification records for this client instance.
type Store interface {
	// LoadRecord returns the record for action; found is false if none.
	LoadRecord(action string) (rec Record, found bool, err error)
	// SaveRecord replaces the record for rec.Action.
	SaveRecord(rec Record) error
	DeleteRecord(action string) error
	ClearRecords() error
}

// MemoryStore is a Store that lives as long as the process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) LoadRecord(action string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[action]
	return rec, ok, nil
}

func (m *MemoryStore) SaveRecord(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Action] = rec
	return nil
}

func (m *MemoryStore) DeleteRecord(action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, action)
	return nil
}

func (m *MemoryStore) ClearRecords() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.records)
	return nil
}
