package process

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"groupnotify/internal/domain/dispatch"
)

var _ dispatch.Launcher = (*Launcher)(nil)

// Launcher starts each background worker as a detached child process:
//
//	worker -once secret=...&host=...
//
// is passed as one argument per key/value pair. The child's output is
// discarded and Launch returns as soon as the process has started.
type Launcher struct {
	binary  string
	command func(name string, args ...string) *exec.Cmd
}

// NewLauncher creates a process launcher for the given worker binary.
func NewLauncher(binary string) *Launcher {
	return &Launcher{binary: binary, command: exec.Command}
}

// Args returns the worker command-line arguments for an encoded request.
func Args(query string) []string {
	args := []string{"-once"}
	for _, pair := range strings.Split(query, "&") {
		if pair != "" {
			args = append(args, pair)
		}
	}
	return args
}

// Launch spawns the worker and returns once it has started. The request
// context is not tied to the child: the worker must outlive the request.
func (l *Launcher) Launch(ctx context.Context, query string) error {
	cmd := l.command(l.binary, Args(query)...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting worker %s: %w", l.binary, err)
	}

	pid := cmd.Process.Pid
	// Reap the child so it does not linger as a zombie.
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Warn("background worker exited with error", "pid", pid, "error", err)
		}
	}()

	slog.Debug("background worker started", "pid", pid)
	return nil
}
