// Package install copies credential files from the issuer's drop directory
// into the directory the supervised server reads from, enforcing ownership
// and permission invariants on the installed files.
package install

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"go.uber.org/zap"

	"github.com/arhuman/certwatch/internal/checksum"
	"github.com/arhuman/certwatch/internal/logging"
)

var (
	// ErrSourceMissing is returned when part of the source credential set is
	// absent. The install is aborted before any destination file is touched.
	ErrSourceMissing = errors.New("source credential missing")

	// ErrInstallFailed is returned when copying, ownership, or permission
	// setting fails partway through.
	ErrInstallFailed = errors.New("install failed")
)

// CredentialPair describes one tracked credential file: where the issuer
// writes it and where the server expects it.
type CredentialPair struct {
	Role       checksum.Role
	SourcePath string
	DestPath   string
}

// modeFor returns the permission bits required for an installed file.
// Private keys are readable by the owning service account only, certificates
// are world-readable.
func modeFor(role checksum.Role) os.FileMode {
	if role == checksum.RoleKey {
		return 0600
	}
	return 0644
}

// Owner is the service account installed files are chowned to.
type Owner struct {
	UID int
	GID int
}

// LookupOwner resolves a user and group name to numeric ids. Empty names
// mean ownership is left untouched and a nil Owner is returned.
func LookupOwner(userName, groupName string) (*Owner, error) {
	if userName == "" && groupName == "" {
		return nil, nil
	}

	u, err := user.Lookup(userName)
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", userName, err)
	}
	g, err := user.LookupGroup(groupName)
	if err != nil {
		return nil, fmt.Errorf("lookup group %s: %w", groupName, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("parse uid %s: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return nil, fmt.Errorf("parse gid %s: %w", g.Gid, err)
	}

	return &Owner{UID: uid, GID: gid}, nil
}

// Recorder persists the fingerprint of each installed file. Advancing the
// record is part of the install transaction: if it fails, the install is
// reported failed and the next poll retries the whole copy.
type Recorder interface {
	Store(role checksum.Role, fp checksum.Fingerprint) error
}

// Installer copies credential pairs into the destination directory.
type Installer struct {
	destDir string
	owner   *Owner
	records Recorder
	logger  *zap.Logger
}

// NewInstaller creates an installer writing into destDir. A nil owner skips
// the chown step.
func NewInstaller(destDir string, owner *Owner, records Recorder, logger *zap.Logger) *Installer {
	return &Installer{
		destDir: destDir,
		owner:   owner,
		records: records,
		logger:  logger,
	}
}

// Install copies every pair into the destination directory. The operation is
// all-or-nothing on the source side: if any source file is missing, nothing
// is written, so a mismatched cert/key pair can never be installed. A failure
// after copying has begun may leave partial destination state; the stored
// fingerprints are only advanced once every file is in place, so the next
// poll repeats the full copy.
func (i *Installer) Install(pairs []CredentialPair) error {
	logger, start := logging.FuncLogger(i.logger, "Installer.Install")
	defer logging.FuncExit(logger, start)

	// Read the full source set up front. Any missing or unreadable file
	// aborts before a single destination byte is written.
	contents := make([][]byte, len(pairs))
	for n, pair := range pairs {
		data, err := os.ReadFile(pair.SourcePath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSourceMissing, pair.SourcePath, err)
		}
		contents[n] = data
	}

	if err := os.MkdirAll(i.destDir, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrInstallFailed, i.destDir, err)
	}

	for n, pair := range pairs {
		mode := modeFor(pair.Role)
		if err := os.WriteFile(pair.DestPath, contents[n], mode); err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrInstallFailed, pair.DestPath, err)
		}
		// WriteFile only applies the mode on creation; enforce it on
		// every install so a pre-existing file cannot keep loose bits.
		if err := os.Chmod(pair.DestPath, mode); err != nil {
			return fmt.Errorf("%w: chmod %s: %v", ErrInstallFailed, pair.DestPath, err)
		}
		if i.owner != nil {
			if err := os.Chown(pair.DestPath, i.owner.UID, i.owner.GID); err != nil {
				return fmt.Errorf("%w: chown %s: %v", ErrInstallFailed, pair.DestPath, err)
			}
		}

		logger.Info("Installed credential file",
			zap.String("role", string(pair.Role)),
			zap.String("source", pair.SourcePath),
			zap.String("dest", pair.DestPath),
			zap.String("mode", mode.String()))
	}

	// Record fingerprints of what was installed. The digest is taken from
	// the bytes actually written, not re-read from the source, so a source
	// refresh racing the copy is still detected on the next poll.
	for n, pair := range pairs {
		if err := i.records.Store(pair.Role, checksum.Digest(contents[n])); err != nil {
			return fmt.Errorf("%w: record %s: %v", ErrInstallFailed, pair.Role, err)
		}
	}

	return nil
}
