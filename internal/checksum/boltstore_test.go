package checksum

import (
	"path/filepath"
	"testing"
)

func TestBoltStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "certwatch.db")

	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Load(RoleCert); err != nil || ok {
		t.Errorf("Expected no record in a fresh database (ok=%v, err=%v)", ok, err)
	}

	if err := s.Store(RoleCert, Fingerprint("deadbeef")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	fp, ok, err := s.Load(RoleCert)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok || fp != Fingerprint("deadbeef") {
		t.Errorf("Expected deadbeef, got %q (ok=%v)", fp, ok)
	}

	// Overwrite replaces the prior value.
	if err := s.Store(RoleCert, Fingerprint("cafe")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	fp, ok, err = s.Load(RoleCert)
	if err != nil || !ok || fp != Fingerprint("cafe") {
		t.Errorf("Expected overwritten value cafe, got %q (ok=%v, err=%v)", fp, ok, err)
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certwatch.db")

	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	if err := s.Store(RoleKey, Fingerprint("0123")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	fp, ok, err := s2.Load(RoleKey)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok || fp != Fingerprint("0123") {
		t.Errorf("Expected record to survive reopen, got %q (ok=%v)", fp, ok)
	}
}
