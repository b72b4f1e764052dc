package checksum

import "sync"

// MemoryStore implements RecordStore in memory. It backs tests and lets the
// rotation loop run without touching a real filesystem.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Role]Fingerprint
}

var _ RecordStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Role]Fingerprint),
	}
}

// Load reads the fingerprint last recorded for role.
func (s *MemoryStore) Load(role Role) (Fingerprint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.records[role]
	return fp, ok, nil
}

// Store overwrites the fingerprint recorded for role.
func (s *MemoryStore) Store(role Role, fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[role] = fp
	return nil
}
