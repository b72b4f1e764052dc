// Package supervisor owns the lifecycle of the server process whose
// credentials certwatch rotates. It launches the child, relays termination
// signals, and reports its exit. No other component terminates the child.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// ErrLaunchFailed is returned when the server executable cannot be started.
// This is fatal for the whole process: with no server running there is
// nothing to rotate credentials for.
var ErrLaunchFailed = errors.New("server launch failed")

// State describes where the supervised server is in its lifecycle.
type State int32

const (
	NotStarted State = iota
	Running
	ShuttingDown
	Exited
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Supervisor launches and owns exactly one child server process.
type Supervisor struct {
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	exitCode int

	done chan struct{}
}

// New creates a supervisor with no child yet.
func New(logger *zap.Logger) *Supervisor {
	return &Supervisor{
		logger: logger,
		state:  NotStarted,
		done:   make(chan struct{}),
	}
}

// Start launches the server in the background. The child inherits stdout and
// stderr so its own logs stay visible. At most one child may ever be started
// per supervisor.
func (s *Supervisor) Start(command string, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != NotStarted {
		return fmt.Errorf("%w: supervisor already used (state %s)", ErrLaunchFailed, s.state)
	}

	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLaunchFailed, command, err)
	}

	s.cmd = cmd
	s.state = Running
	s.logger.Info("Server started",
		zap.String("command", command),
		zap.Strings("args", args),
		zap.Int("pid", cmd.Process.Pid))

	go s.reap()
	return nil
}

// reap waits for the child to exit and records its status.
func (s *Supervisor) reap() {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.exitCode = 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			s.exitCode = exitErr.ExitCode()
		} else {
			s.exitCode = -1
		}
	}
	s.state = Exited
	code := s.exitCode
	s.mu.Unlock()

	s.logger.Info("Server exited", zap.Int("exit_code", code))
	close(s.done)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Signal delivers sig to the running child. Used by the reload trigger; the
// caller gets an error when the child is not running.
func (s *Supervisor) Signal(sig os.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return fmt.Errorf("server not running (state %s)", s.state)
	}
	return s.cmd.Process.Signal(sig)
}

// RequestShutdown asks the child to terminate gracefully. Safe to call when
// the child already exited.
func (s *Supervisor) RequestShutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running:
		s.logger.Info("Requesting server shutdown", zap.Int("pid", s.cmd.Process.Pid))
		if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal server: %w", err)
		}
		s.state = ShuttingDown
		return nil
	case ShuttingDown, Exited:
		return nil
	default:
		return fmt.Errorf("no server to shut down (state %s)", s.state)
	}
}

// AwaitExit blocks until the child exits and returns its exit status.
func (s *Supervisor) AwaitExit() int {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Done is closed once the child has exited, whatever the reason.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}
