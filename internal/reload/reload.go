// Package reload asks the supervised server to re-read its configuration and
// credential files in place, without dropping active connections. A failed
// reload is never fatal: the rotation loop logs it and carries on.
package reload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/zap"
)

// ErrReloadFailed is returned when the server rejects the reload request or
// is not running.
var ErrReloadFailed = errors.New("reload failed")

// Signaler delivers an OS signal to the supervised server process. Both the
// supervisor and the pid-file remote satisfy this.
type Signaler interface {
	Signal(sig os.Signal) error
}

// SignalTrigger reloads the server by sending it a signal, SIGHUP by
// convention.
type SignalTrigger struct {
	target Signaler
	sig    os.Signal
	logger *zap.Logger
}

// NewSignalTrigger creates a trigger that sends SIGHUP to target.
func NewSignalTrigger(target Signaler, logger *zap.Logger) *SignalTrigger {
	return &SignalTrigger{
		target: target,
		sig:    syscall.SIGHUP,
		logger: logger,
	}
}

// Reload sends the reload signal to the server.
func (t *SignalTrigger) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}

	if err := t.target.Signal(t.sig); err != nil {
		return fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}

	t.logger.Info("Reload signal sent", zap.String("signal", t.sig.String()))
	return nil
}
