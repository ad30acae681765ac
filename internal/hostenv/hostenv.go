package hostenv

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/skydriftlabs/skydrift-setup/internal/logger"
)

// jsonHelperBinary is the JSON field-extraction tool operators use against
// the agent's API responses. The agent's runbooks assume it is present.
const jsonHelperBinary = "jq"

// ErrDependencyInstall indicates a required host tool could not be installed.
var ErrDependencyInstall = errors.New("host dependency install failed")

// commandRunner executes a host command and returns its combined output.
// It exists so tests can intercept package-manager invocations.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// lookPath resolves a binary on PATH; injectable for tests.
type lookPath func(name string) (string, error)

// Env probes and repairs the host prerequisites of a setup run.
type Env struct {
	run  commandRunner
	look lookPath
}

// New returns an Env backed by the real host.
func New() *Env {
	return &Env{
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		look: exec.LookPath,
	}
}

// NewWithRunner returns an Env with injected command execution and lookup,
// used by tests.
func NewWithRunner(run commandRunner, look lookPath) *Env {
	return &Env{run: run, look: look}
}

// Ensure verifies the JSON helper tool exists, installing it through the host
// package manager when missing. Installation failure is fatal to the run.
func (e *Env) Ensure(ctx context.Context) error {
	if _, err := e.look(jsonHelperBinary); err == nil {
		logger.DebugKV(ctx, "Host dependency present", "binary", jsonHelperBinary)
		return nil
	}

	logger.InfoKV(ctx, "Installing missing host dependency", "binary", jsonHelperBinary)

	output, err := e.run(ctx, "apt-get", "install", "-y", jsonHelperBinary)
	if err != nil {
		return fmt.Errorf("install %s: %s: %w", jsonHelperBinary, string(output), ErrDependencyInstall)
	}

	if _, err := e.look(jsonHelperBinary); err != nil {
		return fmt.Errorf("%s still missing after install: %w", jsonHelperBinary, ErrDependencyInstall)
	}

	return nil
}
