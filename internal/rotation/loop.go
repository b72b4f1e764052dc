// Package rotation runs the certificate rotation loop: poll the source
// directory for changed credential files, install the full set when anything
// changed, then trigger a server reload.
package rotation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arhuman/certwatch/internal/install"
)

// Loop periodically checks the tracked credential pairs and rotates them.
// There is exactly one loop per process and it has no internal parallelism:
// detection, install, and reload run strictly in sequence.
type Loop struct {
	pairs     []install.CredentialPair
	detector  ChangeDetector
	installer Installer
	reloader  Reloader
	interval  time.Duration
	grace     time.Duration
	logger    *zap.Logger
}

// NewLoop creates a rotation loop over the given credential pairs.
func NewLoop(pairs []install.CredentialPair, detector ChangeDetector, installer Installer, reloader Reloader, interval, grace time.Duration, logger *zap.Logger) *Loop {
	return &Loop{
		pairs:     pairs,
		detector:  detector,
		installer: installer,
		reloader:  reloader,
		interval:  interval,
		grace:     grace,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled. The first poll waits out the startup
// grace period so the server has finished starting before any reload can be
// requested. Always returns nil after a clean cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if l.grace > 0 {
		l.logger.Info("Waiting for server startup before first poll",
			zap.Duration("grace", l.grace))
		if !l.sleep(ctx, l.grace) {
			return nil
		}
	}

	for {
		l.poll(ctx)

		if !l.sleep(ctx, l.interval) {
			return nil
		}
	}
}

// sleep blocks for d or until ctx is cancelled. Reports false on
// cancellation so the loop stops polling immediately.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.logger.Debug("Rotation loop cancelled during sleep")
		return false
	case <-timer.C:
		return true
	}
}

// poll runs one rotation iteration: detect, install, reload.
func (l *Loop) poll(ctx context.Context) {
	changed := false
	for _, pair := range l.pairs {
		ch, err := l.detector.Changed(pair.Role, pair.SourcePath)
		if err != nil {
			// Source not readable yet (issuer may not have deposited
			// files). Nothing to install this cycle, retry next one.
			l.logger.Warn("Cannot check credential file, will retry next cycle",
				zap.String("role", string(pair.Role)),
				zap.String("path", pair.SourcePath),
				zap.Error(err))
			return
		}
		if ch {
			l.logger.Info("Credential change detected",
				zap.String("role", string(pair.Role)),
				zap.String("path", pair.SourcePath))
			changed = true
		}
	}

	if !changed {
		l.logger.Info("No credential change")
		return
	}

	// Always install the full set together, even when only one file
	// changed: a certificate must never be split from its key.
	if err := l.installer.Install(l.pairs); err != nil {
		// Fingerprint records were not advanced, so the change is
		// detected again and retried on the next cycle.
		l.logger.Error("Credential install failed, will retry next cycle", zap.Error(err))
		return
	}
	l.logger.Info("Credentials installed", zap.Int("files", len(l.pairs)))

	if err := l.reloader.Reload(ctx); err != nil {
		// The files are installed and their fingerprints recorded; only
		// the reload is lost. Operators see this in the logs, the next
		// poll will not reinstall unchanged files.
		l.logger.Error("Server reload failed", zap.Error(err))
		return
	}
	l.logger.Info("Server reload triggered")
}
