//go:build !windows

package procinspect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor"
	"go.uber.org/zap"
)

type unixInspector struct {
	executor executor.Executor
	logger   *zap.SugaredLogger
}

func newPlatformInspector(exec executor.Executor, logger *zap.SugaredLogger) Inspector {
	return &unixInspector{executor: exec, logger: logger}
}

// ListeningPIDs asks lsof for listeners on the port, falling back to ss
// where lsof is unavailable.
func (u *unixInspector) ListeningPIDs(ctx context.Context, port int) ([]int, error) {
	stdout, _, _, err := u.executor.Run(ctx, "lsof", []string{"-t", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN"}, executor.RunOpts{})
	if err == nil {
		return parsePIDLines(stdout), nil
	}

	// lsof exits non-zero both when missing and when nothing listens; try ss
	// before concluding the port is free.
	stdout, _, _, ssErr := u.executor.Run(ctx, "ss", []string{"-tlnp", fmt.Sprintf("sport = :%d", port)}, executor.RunOpts{})
	if ssErr != nil {
		return nil, nil
	}
	return parseSSPIDs(stdout), nil
}

func (u *unixInspector) ParentPID(ctx context.Context, pid int) (int, error) {
	stdout, _, _, err := u.executor.Run(ctx, "ps", []string{"-o", "ppid=", "-p", strconv.Itoa(pid)}, executor.RunOpts{})
	if err != nil {
		return -1, fmt.Errorf("resolving parent of %d: %w", pid, err)
	}
	ppid, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil {
		return -1, fmt.Errorf("parsing parent of %d: %w", pid, err)
	}
	return ppid, nil
}

func (u *unixInspector) CommandLine(ctx context.Context, pid int) (string, error) {
	stdout, _, _, err := u.executor.Run(ctx, "ps", []string{"-o", "command=", "-p", strconv.Itoa(pid)}, executor.RunOpts{})
	if err != nil {
		return "", fmt.Errorf("resolving command line of %d: %w", pid, err)
	}
	return strings.TrimSpace(stdout), nil
}

// IsAlive probes with signal 0, which delivers nothing but reports
// existence.
func (u *unixInspector) IsAlive(ctx context.Context, pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func (u *unixInspector) ListAll(ctx context.Context) ([]ProcessSummary, error) {
	stdout, _, _, err := u.executor.Run(ctx, "ps", []string{"-axo", "pid=,ppid=,command="}, executor.RunOpts{})
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var summaries []ProcessSummary
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, pidErr := strconv.Atoi(fields[0])
		ppid, ppidErr := strconv.Atoi(fields[1])
		if pidErr != nil || ppidErr != nil {
			continue
		}
		summaries = append(summaries, ProcessSummary{
			PID:     pid,
			PPID:    ppid,
			Command: strings.Join(fields[2:], " "),
		})
	}
	return summaries, nil
}

func (u *unixInspector) Terminate(ctx context.Context, pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

func (u *unixInspector) Kill(ctx context.Context, pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

func parsePIDLines(out string) []int {
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

// parseSSPIDs extracts pids from ss -tlnp output, which embeds them as
// users:(("name",pid=123,fd=4)).
func parseSSPIDs(out string) []int {
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "pid=")
		for idx >= 0 {
			rest := line[idx+len("pid="):]
			end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
			if end == -1 {
				end = len(rest)
			}
			if pid, err := strconv.Atoi(rest[:end]); err == nil && pid > 0 {
				pids = append(pids, pid)
			}
			next := strings.Index(rest, "pid=")
			if next == -1 {
				break
			}
			idx = idx + len("pid=") + next
		}
	}
	return pids
}
