//go:build !windows

package procinspect

import (
	"context"
	"os"
	"testing"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor/executormock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestParsePIDLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []int
	}{
		{name: "single", in: "1234\n", want: []int{1234}},
		{name: "multiple", in: "1234\n5678\n", want: []int{1234, 5678}},
		{name: "empty", in: "", want: nil},
		{name: "garbage lines skipped", in: "1234\nabc\n-5\n", want: []int{1234}},
		{name: "padded", in: "  42  \n", want: []int{42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePIDLines(tt.in))
		})
	}
}

func TestParseSSPIDs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []int
	}{
		{
			name: "single listener",
			in:   `LISTEN 0 128 127.0.0.1:8888 0.0.0.0:* users:(("python",pid=1234,fd=7))`,
			want: []int{1234},
		},
		{
			name: "multiple pids on one socket",
			in:   `LISTEN 0 128 *:8888 *:* users:(("python",pid=1234,fd=7),("python",pid=5678,fd=7))`,
			want: []int{1234, 5678},
		},
		{name: "header only", in: "State Recv-Q Send-Q Local Address:Port Peer Address:Port Process", want: nil},
		{name: "empty", in: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSSPIDs(tt.in))
		})
	}
}

func TestListeningPIDsFallsBackToSS(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := executormock.NewMockExecutor(ctrl)
	inspector := newPlatformInspector(exec, zap.NewNop().Sugar())

	exec.EXPECT().
		Run(gomock.Any(), "lsof", gomock.Any(), gomock.Any()).
		Return("", "", 1, assert.AnError)
	exec.EXPECT().
		Run(gomock.Any(), "ss", gomock.Any(), gomock.Any()).
		Return(`LISTEN 0 128 127.0.0.1:8888 0.0.0.0:* users:(("python",pid=777,fd=7))`, "", 0, nil)

	pids, err := inspector.ListeningPIDs(context.Background(), 8888)
	require.NoError(t, err)
	assert.Equal(t, []int{777}, pids)
}

func TestListeningPIDsBothToolsFailMeansFreePort(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := executormock.NewMockExecutor(ctrl)
	inspector := newPlatformInspector(exec, zap.NewNop().Sugar())

	exec.EXPECT().Run(gomock.Any(), "lsof", gomock.Any(), gomock.Any()).Return("", "", 1, assert.AnError)
	exec.EXPECT().Run(gomock.Any(), "ss", gomock.Any(), gomock.Any()).Return("", "", 1, assert.AnError)

	pids, err := inspector.ListeningPIDs(context.Background(), 8888)
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestListAllParsesPSOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := executormock.NewMockExecutor(ctrl)
	inspector := newPlatformInspector(exec, zap.NewNop().Sugar())

	exec.EXPECT().
		Run(gomock.Any(), "ps", []string{"-axo", "pid=,ppid=,command="}, gomock.Any()).
		Return("    1     0 /sbin/init\n  555     1 python -m deepnote_toolkit.server --jupyter-port 8888\nbad line\n", "", 0, nil)

	summaries, err := inspector.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, ProcessSummary{PID: 1, PPID: 0, Command: "/sbin/init"}, summaries[0])
	assert.Equal(t, ProcessSummary{PID: 555, PPID: 1, Command: "python -m deepnote_toolkit.server --jupyter-port 8888"}, summaries[1])
}

func TestParentPID(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := executormock.NewMockExecutor(ctrl)
	inspector := newPlatformInspector(exec, zap.NewNop().Sugar())

	exec.EXPECT().
		Run(gomock.Any(), "ps", []string{"-o", "ppid=", "-p", "555"}, gomock.Any()).
		Return("  123\n", "", 0, nil)

	ppid, err := inspector.ParentPID(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, 123, ppid)
}

func TestIsAliveSelf(t *testing.T) {
	ctrl := gomock.NewController(t)
	inspector := newPlatformInspector(executormock.NewMockExecutor(ctrl), zap.NewNop().Sugar())

	assert.True(t, inspector.IsAlive(context.Background(), os.Getpid()))
	// PID beyond the kernel's allocatable range.
	assert.False(t, inspector.IsAlive(context.Background(), 1<<30))
}
