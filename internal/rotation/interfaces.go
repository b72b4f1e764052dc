package rotation

import (
	"context"

	"github.com/arhuman/certwatch/internal/checksum"
	"github.com/arhuman/certwatch/internal/install"
)

// ChangeDetector reports whether a tracked source file differs from the
// version last installed.
type ChangeDetector interface {
	// Changed compares the file at path against the fingerprint recorded
	// for role. A role never recorded counts as changed.
	Changed(role checksum.Role, path string) (bool, error)
}

// Installer copies the full credential set into place and advances the
// fingerprint records.
type Installer interface {
	// Install performs an all-or-nothing install of every pair.
	Install(pairs []install.CredentialPair) error
}

// Reloader asks the running server to pick up the installed credentials.
type Reloader interface {
	// Reload requests an in-place configuration reload.
	Reload(ctx context.Context) error
}
