//go:build windows

package procinspect

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor"
	"go.uber.org/zap"
)

type windowsInspector struct {
	executor executor.Executor
	logger   *zap.SugaredLogger
}

func newPlatformInspector(exec executor.Executor, logger *zap.SugaredLogger) Inspector {
	return &windowsInspector{executor: exec, logger: logger}
}

// ListeningPIDs parses netstat's connection table for LISTENING rows on the
// port.
func (w *windowsInspector) ListeningPIDs(ctx context.Context, port int) ([]int, error) {
	stdout, _, _, err := w.executor.Run(ctx, "netstat", []string{"-ano", "-p", "TCP"}, executor.RunOpts{})
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	suffix := fmt.Sprintf(":%d", port)
	var pids []int
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Fields(line)
		// Proto LocalAddress ForeignAddress State PID
		if len(fields) < 5 || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		if pid, err := strconv.Atoi(fields[4]); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (w *windowsInspector) ParentPID(ctx context.Context, pid int) (int, error) {
	stdout, _, _, err := w.executor.Run(ctx, "wmic", []string{"process", "where", fmt.Sprintf("ProcessId=%d", pid), "get", "ParentProcessId", "/format:list"}, executor.RunOpts{})
	if err != nil {
		return -1, fmt.Errorf("resolving parent of %d: %w", pid, err)
	}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "ParentProcessId="); ok {
			ppid, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return -1, fmt.Errorf("parsing parent of %d: %w", pid, err)
			}
			return ppid, nil
		}
	}
	return -1, fmt.Errorf("no parent reported for %d", pid)
}

func (w *windowsInspector) CommandLine(ctx context.Context, pid int) (string, error) {
	stdout, _, _, err := w.executor.Run(ctx, "wmic", []string{"process", "where", fmt.Sprintf("ProcessId=%d", pid), "get", "CommandLine", "/format:list"}, executor.RunOpts{})
	if err != nil {
		return "", fmt.Errorf("resolving command line of %d: %w", pid, err)
	}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "CommandLine="); ok {
			return strings.TrimSpace(value), nil
		}
	}
	return "", nil
}

func (w *windowsInspector) IsAlive(ctx context.Context, pid int) bool {
	stdout, _, _, err := w.executor.Run(ctx, "tasklist", []string{"/FI", fmt.Sprintf("PID eq %d", pid), "/NH", "/FO", "CSV"}, executor.RunOpts{})
	if err != nil {
		return false
	}
	return strings.Contains(stdout, fmt.Sprintf("\"%d\"", pid))
}

func (w *windowsInspector) ListAll(ctx context.Context) ([]ProcessSummary, error) {
	stdout, _, _, err := w.executor.Run(ctx, "wmic", []string{"process", "get", "ProcessId,ParentProcessId,CommandLine", "/format:csv"}, executor.RunOpts{})
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(strings.ReplaceAll(stdout, "\r", "")))
	reader.FieldsPerRecord = -1

	var summaries []ProcessSummary
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing process listing: %w", err)
	}
	for _, record := range records {
		// Node,CommandLine,ParentProcessId,ProcessId
		if len(record) < 4 {
			continue
		}
		pid, pidErr := strconv.Atoi(strings.TrimSpace(record[3]))
		ppid, ppidErr := strconv.Atoi(strings.TrimSpace(record[2]))
		if pidErr != nil || ppidErr != nil {
			continue
		}
		summaries = append(summaries, ProcessSummary{
			PID:     pid,
			PPID:    ppid,
			Command: record[1],
		})
	}
	return summaries, nil
}

// Terminate asks taskkill for a graceful stop; Windows has no SIGTERM, so
// this sends WM_CLOSE-style termination and Kill adds /F.
func (w *windowsInspector) Terminate(ctx context.Context, pid int) error {
	_, stderr, _, err := w.executor.Run(ctx, "taskkill", []string{"/PID", strconv.Itoa(pid), "/T"}, executor.RunOpts{})
	if err != nil {
		return fmt.Errorf("terminating %d: %s: %w", pid, strings.TrimSpace(stderr), err)
	}
	return nil
}

func (w *windowsInspector) Kill(ctx context.Context, pid int) error {
	_, stderr, _, err := w.executor.Run(ctx, "taskkill", []string{"/PID", strconv.Itoa(pid), "/T", "/F"}, executor.RunOpts{})
	if err != nil {
		return fmt.Errorf("killing %d: %s: %w", pid, strings.TrimSpace(stderr), err)
	}
	return nil
}
