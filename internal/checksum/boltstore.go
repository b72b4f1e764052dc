package checksum

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

var bucketFingerprints = []byte("fingerprints")

// fingerprintRecord is the persisted form of a last-installed fingerprint.
type fingerprintRecord struct {
	Digest      string    `cbor:"1,keyasint"`
	InstalledAt time.Time `cbor:"2,keyasint"`
}

// BoltStore implements RecordStore using bbolt for persistence. Writes go
// through a single update transaction, so a record is either the old value
// or the new one, never a torn write.
type BoltStore struct {
	db *bbolt.DB
}

var _ RecordStore = (*BoltStore)(nil)

// OpenBolt opens (or creates) the fingerprint database at path.
func OpenBolt(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFingerprints)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Load reads the fingerprint last recorded for role.
func (s *BoltStore) Load(role Role) (Fingerprint, bool, error) {
	var rec fingerprintRecord
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFingerprints).Get([]byte(role))
		if data == nil {
			return nil
		}
		found = true
		return cbor.Unmarshal(data, &rec)
	})
	if err != nil {
		return "", false, fmt.Errorf("load record %s: %w", role, err)
	}
	if !found {
		return "", false, nil
	}

	return Fingerprint(rec.Digest), true, nil
}

// Store overwrites the fingerprint recorded for role.
func (s *BoltStore) Store(role Role, fp Fingerprint) error {
	rec := fingerprintRecord{
		Digest:      string(fp),
		InstalledAt: time.Now(),
	}
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", role, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFingerprints).Put([]byte(role), data)
	})
	if err != nil {
		return fmt.Errorf("store record %s: %w", role, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
