package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("supervisor tests rely on unix shell commands and signals")
	}
}

func TestSupervisorLifecycle(t *testing.T) {
	skipOnWindows(t)

	s := New(zap.NewNop())
	if s.State() != NotStarted {
		t.Errorf("Expected initial state not-started, got %s", s.State())
	}

	if err := s.Start("sleep", "60"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != Running {
		t.Errorf("Expected state running, got %s", s.State())
	}

	// A running child accepts signals.
	if err := s.Signal(syscall.Signal(0)); err != nil {
		t.Errorf("Signal failed on running child: %v", err)
	}

	if err := s.RequestShutdown(); err != nil {
		t.Fatalf("RequestShutdown failed: %v", err)
	}

	done := make(chan int, 1)
	go func() { done <- s.AwaitExit() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("AwaitExit did not return after shutdown request")
	}

	if s.State() != Exited {
		t.Errorf("Expected state exited, got %s", s.State())
	}

	// Shutdown after exit is a no-op.
	if err := s.RequestShutdown(); err != nil {
		t.Errorf("RequestShutdown after exit should be a no-op, got %v", err)
	}
}

func TestSupervisorLaunchFailed(t *testing.T) {
	s := New(zap.NewNop())

	err := s.Start(filepath.Join(t.TempDir(), "no-such-server"))
	if err == nil {
		t.Fatal("Expected error starting nonexistent executable")
	}
	if !errors.Is(err, ErrLaunchFailed) {
		t.Errorf("Expected ErrLaunchFailed, got %v", err)
	}
	if s.State() != NotStarted {
		t.Errorf("Expected state not-started after failed launch, got %s", s.State())
	}
}

func TestSupervisorChildSelfExit(t *testing.T) {
	skipOnWindows(t)

	s := New(zap.NewNop())
	if err := s.Start("sh", "-c", "exit 3"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done was not closed after child exit")
	}

	if code := s.AwaitExit(); code != 3 {
		t.Errorf("Expected exit code 3, got %d", code)
	}
	if err := s.Signal(syscall.SIGHUP); err == nil {
		t.Error("Expected Signal to fail once the child exited")
	}
}

func TestSupervisorSingleChild(t *testing.T) {
	skipOnWindows(t)

	s := New(zap.NewNop())
	if err := s.Start("sleep", "60"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		s.RequestShutdown()
		s.AwaitExit()
	}()

	if err := s.Start("sleep", "60"); err == nil {
		t.Error("Expected second Start to be rejected")
	}
}

func TestSignalBeforeStart(t *testing.T) {
	s := New(zap.NewNop())
	if err := s.Signal(syscall.SIGHUP); err == nil {
		t.Error("Expected Signal to fail before the child is started")
	}
}

func TestFromPidFile(t *testing.T) {
	skipOnWindows(t)

	path := filepath.Join(t.TempDir(), "server.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}

	r, err := FromPidFile(path, zap.NewNop())
	if err != nil {
		t.Fatalf("FromPidFile failed: %v", err)
	}
	if err := r.Signal(syscall.Signal(0)); err != nil {
		t.Errorf("Signal failed: %v", err)
	}
}

func TestFromPidFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")
	if err := os.WriteFile(path, []byte("not a pid"), 0644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}

	if _, err := FromPidFile(path, zap.NewNop()); err == nil {
		t.Error("Expected error for unparseable pid file")
	}

	if _, err := FromPidFile(filepath.Join(t.TempDir(), "missing.pid"), zap.NewNop()); err == nil {
		t.Error("Expected error for missing pid file")
	}
}
