// Package checksum computes content fingerprints of credential files and
// remembers the fingerprint last installed for each file role, so the
// rotation loop can tell whether the issuer deposited new material.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Role identifies the logical function of a tracked credential file.
type Role string

const (
	RoleCert Role = "cert"
	RoleKey  Role = "key"
)

// Fingerprint is an opaque content digest of a file at a point in time.
// Two equal fingerprints mean the contents are considered identical for
// rotation purposes.
type Fingerprint string

// ErrFileUnavailable is returned when a tracked file is missing or unreadable.
var ErrFileUnavailable = errors.New("file unavailable")

// RecordStore persists the fingerprint last installed for each role.
// Store must overwrite atomically; Load reports absent=false on first run.
type RecordStore interface {
	Load(role Role) (fp Fingerprint, ok bool, err error)
	Store(role Role, fp Fingerprint) error
}

// Digest returns the fingerprint of the given content.
func Digest(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Store answers change queries by comparing current file contents against
// the persisted last-installed fingerprints.
type Store struct {
	records RecordStore
	logger  *zap.Logger
}

// NewStore creates a checksum store backed by the given record store.
func NewStore(records RecordStore, logger *zap.Logger) *Store {
	return &Store{
		records: records,
		logger:  logger,
	}
}

// Compute reads the file at path and returns its fingerprint.
func (s *Store) Compute(path string) (Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFileUnavailable, path, err)
	}
	return Digest(data), nil
}

// Changed reports whether the file at path differs from the fingerprint
// last recorded for role. A role with no record yet always counts as
// changed, which forces the first-time install.
func (s *Store) Changed(role Role, path string) (bool, error) {
	current, err := s.Compute(path)
	if err != nil {
		return false, err
	}

	last, ok, err := s.records.Load(role)
	if err != nil {
		return false, fmt.Errorf("load fingerprint record for %s: %w", role, err)
	}
	if !ok {
		s.logger.Debug("No fingerprint record yet, treating as changed",
			zap.String("role", string(role)),
			zap.String("path", path))
		return true, nil
	}

	return current != last, nil
}
