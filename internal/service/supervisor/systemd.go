package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/skydriftlabs/skydrift-setup/internal/logger"
	"github.com/skydriftlabs/skydrift-setup/internal/service/credentials"
)

// unitFilePermissions is the mode of the written unit definition. The file
// carries credentials, so it is not world-readable.
const unitFilePermissions os.FileMode = 0o600

// ErrSupervisorOperation wraps failing systemctl invocations.
var ErrSupervisorOperation = errors.New("supervisor operation failed")

// CommandRunner executes a supervisor command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Systemd reconciles the managed service against a Descriptor through
// systemctl. Command execution, sleeping and process listing are injectable
// so the transition ordering is testable without a host supervisor.
type Systemd struct {
	// ServiceName is the unit name without the .service suffix.
	ServiceName string
	// UnitFilePath is where the unit definition lives.
	UnitFilePath string
	// SettleDelay is the wait between a stop request and reconfiguration.
	SettleDelay time.Duration

	// Run defaults to exec.CommandContext.
	Run CommandRunner
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
	// Processes defaults to ps.Processes.
	Processes func() ([]ps.Process, error)
	// Kill defaults to killing by pid through os.FindProcess.
	Kill func(pid int) error
}

// NewSystemd returns a Systemd backed by the host's systemctl.
func NewSystemd(serviceName, unitFilePath string, settleDelay time.Duration) *Systemd {
	return &Systemd{
		ServiceName:  serviceName,
		UnitFilePath: unitFilePath,
		SettleDelay:  settleDelay,
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		Sleep:     time.Sleep,
		Processes: ps.Processes,
		Kill: func(pid int) error {
			process, err := os.FindProcess(pid)
			if err != nil {
				return err
			}

			return process.Kill()
		},
	}
}

// Exists reports whether the unit definition is present.
func (s *Systemd) Exists() bool {
	_, err := os.Stat(s.UnitFilePath)

	return err == nil
}

// IsActive reports whether the service is currently running.
func (s *Systemd) IsActive(ctx context.Context) bool {
	_, err := s.Run(ctx, "systemctl", "is-active", "--quiet", s.unit())

	return err == nil
}

// ReadCredentials reads the previously configured credentials back from the
// service's environment block. Missing variables yield empty fields.
func (s *Systemd) ReadCredentials(ctx context.Context) (*credentials.Credentials, error) {
	output, err := s.Run(ctx, "systemctl", "show", s.unit(), "--property=Environment")
	if err != nil {
		return nil, fmt.Errorf("show service environment: %s: %w", string(output), ErrSupervisorOperation)
	}

	env := parseEnvironment(string(output))

	return &credentials.Credentials{
		Email:    env[EnvEmail],
		Password: env[EnvPassword],
	}, nil
}

// Reconcile drives the service to the desired state:
// reload the unit cache, stop a running service and let it settle, write the
// new unit definition, reload again, enable for boot and start.
//
// The unit file is never rewritten while the prior process is still running:
// an active service is stopped first, the settle delay passes, and any
// process still holding the agent executable is killed before the write.
func (s *Systemd) Reconcile(ctx context.Context, descriptor *Descriptor) error {
	// Pick up any out-of-band unit changes before inspecting state.
	if err := s.systemctl(ctx, "daemon-reload"); err != nil {
		return err
	}

	if s.IsActive(ctx) {
		logger.InfoKV(ctx, "Stopping running service", "service", s.unit())

		if err := s.systemctl(ctx, "stop", s.unit()); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Waiting for service to settle", "delay", s.SettleDelay)
		s.Sleep(s.SettleDelay)

		if err := s.sweepLingering(ctx, descriptor.ExecutableName()); err != nil {
			return fmt.Errorf("sweep lingering agent processes: %w", err)
		}
	}

	if err := s.writeUnit(ctx, descriptor); err != nil {
		return err
	}

	if err := s.systemctl(ctx, "daemon-reload"); err != nil {
		return err
	}

	if err := s.systemctl(ctx, "enable", s.unit()); err != nil {
		return err
	}

	if err := s.systemctl(ctx, "start", s.unit()); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Service started", "service", s.unit())

	return nil
}

// writeUnit renders the descriptor and replaces the unit definition.
func (s *Systemd) writeUnit(ctx context.Context, descriptor *Descriptor) error {
	contents, err := RenderUnit(descriptor)
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.UnitFilePath, []byte(contents), unitFilePermissions); err != nil {
		return fmt.Errorf("write unit definition: %w", err)
	}

	logger.InfoKV(ctx, "Unit definition written", "path", s.UnitFilePath)

	return nil
}

// sweepLingering kills processes still running the agent executable after
// the settle delay, so the new unit never races the old binary.
func (s *Systemd) sweepLingering(ctx context.Context, executableName string) error {
	processList, err := s.Processes()
	if err != nil {
		return err
	}

	for _, process := range processList {
		if process.Executable() != executableName {
			continue
		}

		logger.WarnKV(ctx, "Killing lingering agent process",
			"pid", process.Pid(), "executable", executableName)

		if err := s.Kill(process.Pid()); err != nil {
			return err
		}
	}

	return nil
}

// systemctl runs one systemctl operation and wraps failures uniformly.
func (s *Systemd) systemctl(ctx context.Context, args ...string) error {
	output, err := s.Run(ctx, "systemctl", args...)
	if err != nil {
		return fmt.Errorf("systemctl %s: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(string(output)), ErrSupervisorOperation)
	}

	return nil
}

// unit returns the full unit name.
func (s *Systemd) unit() string {
	return s.ServiceName + ".service"
}

// parseEnvironment extracts the variables from a
// `systemctl show --property=Environment` line.
func parseEnvironment(output string) map[string]string {
	env := make(map[string]string)

	for line := range strings.Lines(output) {
		line = strings.TrimSpace(line)

		value, found := strings.CutPrefix(line, "Environment=")
		if !found {
			continue
		}

		for _, pair := range strings.Fields(value) {
			if key, val, ok := strings.Cut(pair, "="); ok {
				env[key] = val
			}
		}
	}

	return env
}
