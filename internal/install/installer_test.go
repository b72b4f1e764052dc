package install

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arhuman/certwatch/internal/checksum"
)

type fixture struct {
	srcDir  string
	destDir string
	records *checksum.MemoryStore
	pairs   []CredentialPair
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srcDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "certs")

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "fullchain.pem"), []byte("CERT v1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "privkey.pem"), []byte("KEY v1"), 0600))

	return &fixture{
		srcDir:  srcDir,
		destDir: destDir,
		records: checksum.NewMemoryStore(),
		pairs: []CredentialPair{
			{Role: checksum.RoleCert, SourcePath: filepath.Join(srcDir, "fullchain.pem"), DestPath: filepath.Join(destDir, "server.crt")},
			{Role: checksum.RoleKey, SourcePath: filepath.Join(srcDir, "privkey.pem"), DestPath: filepath.Join(destDir, "server.key")},
		},
	}
}

func (f *fixture) installer() *Installer {
	return NewInstaller(f.destDir, nil, f.records, zap.NewNop())
}

func TestInstallSuccess(t *testing.T) {
	f := newFixture(t)

	err := f.installer().Install(f.pairs)
	require.NoError(t, err)

	cert, err := os.ReadFile(f.pairs[0].DestPath)
	require.NoError(t, err)
	assert.Equal(t, "CERT v1", string(cert))

	key, err := os.ReadFile(f.pairs[1].DestPath)
	require.NoError(t, err)
	assert.Equal(t, "KEY v1", string(key))

	// Both fingerprints recorded in the same install.
	fp, ok, err := f.records.Load(checksum.RoleCert)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, checksum.Digest([]byte("CERT v1")), fp)

	_, ok, err = f.records.Load(checksum.RoleKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInstallPermissions(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.installer().Install(f.pairs))

	certInfo, err := os.Stat(f.pairs[0].DestPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), certInfo.Mode().Perm(), "certificate must be world-readable")

	keyInfo, err := os.Stat(f.pairs[1].DestPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), keyInfo.Mode().Perm(), "key must be owner-only")
}

func TestInstallTightensExistingPermissions(t *testing.T) {
	f := newFixture(t)

	// A leftover key file with loose permissions must end up at 0600.
	require.NoError(t, os.MkdirAll(f.destDir, 0755))
	require.NoError(t, os.WriteFile(f.pairs[1].DestPath, []byte("old"), 0644))

	require.NoError(t, f.installer().Install(f.pairs))

	keyInfo, err := os.Stat(f.pairs[1].DestPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), keyInfo.Mode().Perm())
}

func TestInstallIdempotent(t *testing.T) {
	f := newFixture(t)
	installer := f.installer()

	require.NoError(t, installer.Install(f.pairs))
	fp1, _, err := f.records.Load(checksum.RoleCert)
	require.NoError(t, err)

	require.NoError(t, installer.Install(f.pairs))
	fp2, _, err := f.records.Load(checksum.RoleCert)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "repeated install of unchanged sources must not move fingerprints")

	cert, err := os.ReadFile(f.pairs[0].DestPath)
	require.NoError(t, err)
	assert.Equal(t, "CERT v1", string(cert))
}

func TestInstallAbortsWhenSourceMissing(t *testing.T) {
	f := newFixture(t)

	// First install, then remove one source and change the other.
	require.NoError(t, f.installer().Install(f.pairs))
	require.NoError(t, os.Remove(f.pairs[1].SourcePath))
	require.NoError(t, os.WriteFile(f.pairs[0].SourcePath, []byte("CERT v2"), 0644))

	fpBefore, _, err := f.records.Load(checksum.RoleCert)
	require.NoError(t, err)

	err = f.installer().Install(f.pairs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceMissing), "expected ErrSourceMissing, got %v", err)

	// Neither destination was touched.
	cert, err := os.ReadFile(f.pairs[0].DestPath)
	require.NoError(t, err)
	assert.Equal(t, "CERT v1", string(cert), "destination must not change on aborted install")

	// Fingerprint record untouched, so the change is retried later.
	fpAfter, _, err := f.records.Load(checksum.RoleCert)
	require.NoError(t, err)
	assert.Equal(t, fpBefore, fpAfter)
}

func TestInstallFreshDirectoryMissingSource(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.pairs[0].SourcePath))

	err := f.installer().Install(f.pairs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceMissing))

	_, err = os.Stat(f.destDir)
	assert.True(t, os.IsNotExist(err), "destination directory must not be created on aborted install")
}

// failingRecorder rejects every store call.
type failingRecorder struct{}

func (failingRecorder) Store(checksum.Role, checksum.Fingerprint) error {
	return errors.New("record store unavailable")
}

func TestInstallFailsWhenRecordStoreFails(t *testing.T) {
	f := newFixture(t)
	installer := NewInstaller(f.destDir, nil, failingRecorder{}, zap.NewNop())

	err := installer.Install(f.pairs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstallFailed), "record failure must fail the install so it is retried")
}

func TestLookupOwnerEmpty(t *testing.T) {
	owner, err := LookupOwner("", "")
	require.NoError(t, err)
	assert.Nil(t, owner, "empty names mean ownership is left untouched")
}

func TestLookupOwnerUnknownUser(t *testing.T) {
	_, err := LookupOwner("no-such-user-certwatch", "no-such-group-certwatch")
	assert.Error(t, err)
}
