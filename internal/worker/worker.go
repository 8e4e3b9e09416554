// Package worker manages a single Python child process running the Bridge
// loop (spec §4.1). It owns the process handle and the raw framed I/O;
// timeouts, health tracking, and serialised access belong to internal/executor.
package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creack/pty"

	"github.com/pyhostd/pyhostd/internal/protocol"
	"github.com/pyhostd/pyhostd/internal/sandbox"
)

// Limits configures the process-wide resource caps the Bridge installs on startup.
type Limits struct {
	MemoryMB    int
	CPUSeconds  int
	OutputBytes int
}

// Config describes how to spawn a Worker.
type Config struct {
	InterpreterPath string // e.g. "python3"; empty means PATH lookup
	Limits          Limits
	// UsePTY starts the Bridge under a pseudo-terminal instead of plain
	// pipes. Ordinary Workers never need this; it exists for interpreter
	// builds that insist on a controlling terminal for admin-mode
	// diagnostics shells (spec §6.7 companion tooling).
	UsePTY bool
}

// Worker owns one Python child process and its stdio pipes. It is not safe
// for concurrent use by multiple goroutines issuing requests: the Executor
// that owns a Worker is responsible for serialising access (spec: "single-
// threaded cooperative execution inside each Worker").
type Worker struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	stderr  io.ReadCloser
	tmpDir  string
}

// Spawn starts a new Python child process running the embedded bridge.py.
func Spawn(cfg Config) (*Worker, error) {
	tmpDir, err := os.MkdirTemp("", "pyhostd-worker-*")
	if err != nil {
		return nil, fmt.Errorf("creating worker scratch dir: %w", err)
	}

	bridgePath := filepath.Join(tmpDir, "bridge.py")
	if err := os.WriteFile(bridgePath, sandbox.BridgeScript, 0o644); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("writing bridge.py: %w", err)
	}

	interp := cfg.InterpreterPath
	if interp == "" {
		interp = "python3"
	}

	cmd := exec.Command(interp, "-u", bridgePath)
	cmd.Dir = tmpDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PYHOSTD_MEMORY_MB=%d", nonZero(cfg.Limits.MemoryMB, 512)),
		fmt.Sprintf("PYHOSTD_CPU_SECONDS=%d", nonZero(cfg.Limits.CPUSeconds, 60)),
		fmt.Sprintf("PYHOSTD_OUTPUT_BYTES=%d", nonZero(cfg.Limits.OutputBytes, 10*1024*1024)),
	)

	if cfg.UsePTY {
		return spawnPTY(cmd, tmpDir, interp)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("starting interpreter %q: %w", interp, err)
	}

	return &Worker{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 64*1024),
		stderr: stderr,
		tmpDir: tmpDir,
	}, nil
}

// spawnPTY starts the Bridge under a pseudo-terminal, grounded on
// markcallen-ai-agent-bridge's StdioProvider.startPTY. stdin and stdout
// share the same pty file descriptor; stderr is merged into it, so
// DrainStderr is a no-op for PTY-backed Workers.
func spawnPTY(cmd *exec.Cmd, tmpDir, interp string) (*Worker, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("starting interpreter %q under pty: %w", interp, err)
	}

	return &Worker{
		cmd:    cmd,
		stdin:  ptmx,
		stdout: bufio.NewReaderSize(ptmx, 64*1024),
		stderr: io.NopCloser(strings.NewReader("")),
		tmpDir: tmpDir,
	}, nil
}

// PID returns the child process id, or 0 if the Worker is not running.
func (w *Worker) PID() int {
	if w.cmd == nil || w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

// Send writes one framed Request line to the Worker's stdin.
func (w *Worker) Send(req protocol.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	_, err = w.stdin.Write(data)
	return err
}

// Recv blocks for one framed Response line from the Worker's stdout.
// Deadline/timeout handling is the caller's (Executor's) responsibility:
// Recv is typically run in a goroutine racing against a timer.
func (w *Worker) Recv() (protocol.Response, error) {
	var resp protocol.Response
	line, err := w.stdout.ReadBytes('\n')
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return resp, fmt.Errorf("worker returned invalid JSON: %w", err)
	}
	return resp, nil
}

// DrainStderr copies the Worker's stderr to the given writer until EOF.
// Stderr is diagnostic only and never parsed as protocol (spec §4.1).
func (w *Worker) DrainStderr(dst io.Writer) {
	_, _ = io.Copy(dst, w.stderr)
}

// Kill force-terminates the child process immediately.
func (w *Worker) Kill() error {
	if w.cmd.Process == nil {
		return nil
	}
	return w.cmd.Process.Kill()
}

// Wait blocks until the child process exits.
func (w *Worker) Wait() error {
	return w.cmd.Wait()
}

// CloseStdin closes the Worker's stdin, signalling EOF.
func (w *Worker) CloseStdin() error {
	return w.stdin.Close()
}

// Cleanup removes the Worker's scratch directory. Call after Wait returns.
func (w *Worker) Cleanup() {
	if w.tmpDir != "" {
		_ = os.RemoveAll(w.tmpDir)
	}
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
