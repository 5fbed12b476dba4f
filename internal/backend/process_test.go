package backend

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

// TestExecuteCommand_BasicExecution verifies basic command execution
func TestExecuteCommand_BasicExecution(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "echo", "hello")

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "hello") {
		t.Errorf("Expected stdout to contain 'hello', got: %s", stdout)
	}
	if len(stderr) > 0 {
		t.Errorf("Expected empty stderr, got: %s", stderr)
	}
}

// TestExecuteCommand_LargeOutput verifies no deadlock when output exceeds the pipe buffer
func TestExecuteCommand_LargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 256KB on stdout and some stderr at the same time
	cmd := newCommand(ctx, "sh", "-c", "head -c 262144 /dev/zero; echo warn >&2")

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(stdout) != 262144 {
		t.Errorf("Expected 262144 bytes of stdout, got %d", len(stdout))
	}
	if !strings.Contains(string(stderr), "warn") {
		t.Errorf("Expected stderr to be captured, got: %s", stderr)
	}
}

// TestExecuteCommand_ContextCancellation verifies the process group dies with the context
func TestExecuteCommand_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cmd := newCommand(ctx, "sh", "-c", "sleep 30")
	start := time.Now()
	_, _, err := executeCommand(ctx, cmd, nil)

	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected error to wrap context.DeadlineExceeded, got: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Cancellation took too long: %v", time.Since(start))
	}
}

// TestExecuteCommand_NonZeroExitCode verifies error handling and output capture on failure
func TestExecuteCommand_NonZeroExitCode(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo partial; echo broken >&2; exit 3")

	stdout, _, err := executeCommand(ctx, cmd, nil)
	if err == nil {
		t.Fatal("Expected error due to non-zero exit code, got nil")
	}
	if !strings.Contains(string(stdout), "partial") {
		t.Errorf("Expected stdout to be captured despite error, got: %s", stdout)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("Expected stderr in error message, got: %v", err)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected error to wrap *exec.ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != 3 {
		t.Errorf("Expected exit code 3, got %d", exitErr.ExitCode())
	}
}

// TestExecuteCommand_TracksProcess verifies the process manager sees the child while it runs
func TestExecuteCommand_TracksProcess(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, _, err := Run(ctx, pm, "", "sh", "-c", "sleep 0.3")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pm.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pm.Count() != 1 {
		t.Errorf("Expected 1 tracked process while running, got %d", pm.Count())
	}

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes after exit, got %d", pm.Count())
	}
}

// TestProcessManager_TrackAndKillAll verifies ProcessManager tracks and terminates processes
func TestProcessManager_TrackAndKillAll(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "sh", "-c", "sleep 300")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start process: %v", err)
	}

	pm.Track(cmd)
	if pm.Count() != 1 {
		t.Errorf("Expected 1 tracked process, got %d", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll() error = %v", err)
	}

	err := cmd.Wait()
	if err == nil {
		t.Fatal("Expected process to be killed (non-nil error), got nil")
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && !status.Signaled() {
			t.Errorf("Expected process to be signaled, got exit status: %v", status)
		}
	}

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes after Untrack, got %d", pm.Count())
	}
}
