package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"

	"github.com/skydriftlabs/skydrift-setup/internal/service/credentials"
)

// fakeProcess satisfies ps.Process for sweep tests.
type fakeProcess struct {
	pid  int
	name string
}

func (p *fakeProcess) Pid() int           { return p.pid }
func (p *fakeProcess) PPid() int          { return 0 }
func (p *fakeProcess) Executable() string { return p.name }

// fakeSystemd returns a Systemd whose collaborators record events into the
// returned slice. Commands are recorded as "systemctl <args>"; sleeps as
// "sleep"; unit writes are visible through the unit file itself.
func fakeSystemd(t *testing.T, active bool) (*Systemd, *[]string) {
	t.Helper()

	events := &[]string{}
	unitPath := filepath.Join(t.TempDir(), "skydrift-agent.service")

	s := &Systemd{
		ServiceName:  "skydrift-agent",
		UnitFilePath: unitPath,
		SettleDelay:  5 * time.Second,
		Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			*events = append(*events, name+" "+strings.Join(args, " "))

			if len(args) > 0 && args[0] == "is-active" && !active {
				return nil, errors.New("exit status 3")
			}

			return nil, nil
		},
		Sleep: func(time.Duration) {
			*events = append(*events, "sleep")
		},
		Processes: func() ([]ps.Process, error) { return nil, nil },
		Kill:      func(int) error { return nil },
	}

	return s, events
}

func testDescriptor() *Descriptor {
	return &Descriptor{
		ServiceName:      "skydrift-agent",
		Description:      "Skydrift agent",
		WorkingDirectory: "/home/op/.skydrift/target",
		ExecutablePath:   "/home/op/.skydrift/target/skydrift-agent-v0.0.400",
		Credentials: credentials.Credentials{
			Email:    "operator@example.com",
			Password: "hunter2",
		},
	}
}

// TestRenderUnit embeds the descriptor into a complete unit definition.
func TestRenderUnit(t *testing.T) {
	t.Parallel()

	contents, err := RenderUnit(testDescriptor())
	require.NoError(t, err)

	require.Contains(t, contents, "Description=Skydrift agent")
	require.Contains(t, contents, "After=network.target")
	require.Contains(t, contents, "Type=simple")
	require.Contains(t, contents, "WorkingDirectory=/home/op/.skydrift/target")
	require.Contains(t, contents,
		"ExecStart=/home/op/.skydrift/target/skydrift-agent-v0.0.400 login operator@example.com hunter2")
	require.Contains(t, contents, "Restart=always")
	require.Contains(t, contents, "Environment=SKYDRIFT_EMAIL=operator@example.com")
	require.Contains(t, contents, "Environment=SKYDRIFT_PASSWORD=hunter2")
	require.Contains(t, contents, "WantedBy=multi-user.target")
}

// TestReconcile_InactiveService skips the stop-and-settle phase entirely.
func TestReconcile_InactiveService(t *testing.T) {
	t.Parallel()

	s, events := fakeSystemd(t, false)

	require.NoError(t, s.Reconcile(context.Background(), testDescriptor()))

	require.Equal(t, []string{
		"systemctl daemon-reload",
		"systemctl is-active --quiet skydrift-agent.service",
		"systemctl daemon-reload",
		"systemctl enable skydrift-agent.service",
		"systemctl start skydrift-agent.service",
	}, *events)

	contents, err := os.ReadFile(s.UnitFilePath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "Restart=always")
}

// TestReconcile_RunningService stops, settles and only then rewrites the unit.
func TestReconcile_RunningService(t *testing.T) {
	t.Parallel()

	s, events := fakeSystemd(t, true)

	// Fail the test if the unit file exists when the stop request is issued:
	// the old definition must never be replaced under a running process.
	baseRun := s.Run
	s.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if len(args) > 0 && args[0] == "stop" {
			_, err := os.Stat(s.UnitFilePath)
			require.ErrorIs(t, err, os.ErrNotExist)
		}

		return baseRun(ctx, name, args...)
	}

	require.NoError(t, s.Reconcile(context.Background(), testDescriptor()))

	require.Equal(t, []string{
		"systemctl daemon-reload",
		"systemctl is-active --quiet skydrift-agent.service",
		"systemctl stop skydrift-agent.service",
		"sleep",
		"systemctl daemon-reload",
		"systemctl enable skydrift-agent.service",
		"systemctl start skydrift-agent.service",
	}, *events)

	_, err := os.Stat(s.UnitFilePath)
	require.NoError(t, err)
}

// TestReconcile_SweepsLingeringProcess kills processes still running the
// agent executable after the settle delay.
func TestReconcile_SweepsLingeringProcess(t *testing.T) {
	t.Parallel()

	s, _ := fakeSystemd(t, true)

	var killed []int

	s.Processes = func() ([]ps.Process, error) {
		return []ps.Process{
			&fakeProcess{pid: 100, name: "skydrift-agent-v0.0.321"},
			&fakeProcess{pid: 200, name: "unrelated"},
		}, nil
	}
	s.Kill = func(pid int) error {
		killed = append(killed, pid)
		return nil
	}

	descriptor := testDescriptor()
	descriptor.ExecutablePath = "/home/op/.skydrift/target/skydrift-agent-v0.0.321"

	require.NoError(t, s.Reconcile(context.Background(), descriptor))
	require.Equal(t, []int{100}, killed)
}

// TestReconcile_OperationFailureIsFatal stops at the first failing systemctl call.
func TestReconcile_OperationFailureIsFatal(t *testing.T) {
	t.Parallel()

	s, events := fakeSystemd(t, false)

	baseRun := s.Run
	s.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if len(args) > 0 && args[0] == "enable" {
			_, _ = baseRun(ctx, name, args...)
			return []byte("permission denied"), errors.New("exit status 1")
		}

		return baseRun(ctx, name, args...)
	}

	err := s.Reconcile(context.Background(), testDescriptor())
	require.ErrorIs(t, err, ErrSupervisorOperation)

	// No start after the failed enable.
	require.Equal(t, "systemctl enable skydrift-agent.service", (*events)[len(*events)-1])
}

// TestReadCredentials parses the environment block reported by systemctl show.
func TestReadCredentials(t *testing.T) {
	t.Parallel()

	s, _ := fakeSystemd(t, false)
	s.Run = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		require.Equal(t, []string{"show", "skydrift-agent.service", "--property=Environment"}, args)

		return []byte("Environment=SKYDRIFT_EMAIL=operator@example.com SKYDRIFT_PASSWORD=hunter2\n"), nil
	}

	got, err := s.ReadCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, &credentials.Credentials{
		Email:    "operator@example.com",
		Password: "hunter2",
	}, got)
}

// TestReadCredentials_EmptyEnvironment yields empty fields for a unit
// without our environment block.
func TestReadCredentials_EmptyEnvironment(t *testing.T) {
	t.Parallel()

	s, _ := fakeSystemd(t, false)
	s.Run = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte("Environment=\n"), nil
	}

	got, err := s.ReadCredentials(context.Background())
	require.NoError(t, err)
	require.Empty(t, got.Email)
	require.Empty(t, got.Password)
}
