package supervisor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// Remote signals an already-running server identified by a pid file, for
// deployments where the server is managed outside this process (for example
// a sidecar container next to the database).
type Remote struct {
	pid    int
	logger *zap.Logger
}

// FromPidFile reads a pid file and attaches to the process it names. The
// process must be alive at attach time.
func FromPidFile(path string, logger *zap.Logger) (*Remote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pid file %s: %w", path, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pid file %s: %w", path, err)
	}

	r := &Remote{pid: pid, logger: logger}
	if err := r.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("process %d from %s not reachable: %w", pid, path, err)
	}

	logger.Info("Attached to external server", zap.Int("pid", pid), zap.String("pid_file", path))
	return r, nil
}

// Signal delivers sig to the external process.
func (r *Remote) Signal(sig os.Signal) error {
	proc, err := os.FindProcess(r.pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", r.pid, err)
	}
	return proc.Signal(sig)
}
