package setup

import (
	"context"
	"fmt"

	"github.com/skydriftlabs/skydrift-setup/internal/config"
	"github.com/skydriftlabs/skydrift-setup/internal/hostenv"
	"github.com/skydriftlabs/skydrift-setup/internal/logger"
	"github.com/skydriftlabs/skydrift-setup/internal/service/artifact"
	"github.com/skydriftlabs/skydrift-setup/internal/service/credentials"
	"github.com/skydriftlabs/skydrift-setup/internal/service/install"
	"github.com/skydriftlabs/skydrift-setup/internal/service/logs"
	"github.com/skydriftlabs/skydrift-setup/internal/service/release"
	"github.com/skydriftlabs/skydrift-setup/internal/service/supervisor"
)

// Options are inputs accepted by the setup entry point.
type Options struct {
	// ConfigPath is the optional path to a settings YAML file.
	ConfigPath string
}

// hostEnsurer repairs host prerequisites.
type hostEnsurer interface {
	Ensure(ctx context.Context) error
}

// versionResolver resolves the latest published version tag.
type versionResolver interface {
	Latest(ctx context.Context) (string, error)
}

// installReconciler brings the install target to the latest version.
type installReconciler interface {
	Reconcile(ctx context.Context, latest string) (*install.Outcome, error)
}

// serviceReconciler drives the OS service supervisor.
type serviceReconciler interface {
	Exists() bool
	ReadCredentials(ctx context.Context) (*credentials.Credentials, error)
	Reconcile(ctx context.Context, descriptor *supervisor.Descriptor) error
}

// runner holds the configuration and collaborators for a single setup
// execution. Callers go through Run(ctx, Options); tests construct it
// directly with scripted collaborators.
type runner struct {
	cfg       *config.Config
	archCheck func() error
	host      hostEnsurer
	resolver  versionResolver
	installer installReconciler
	prompter  credentials.Prompter
	systemd   serviceReconciler
	follow    func(ctx context.Context, serviceName string) error
}

// Run executes the setup workflow and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "skydrift-setup")

	r, err := newRunner(opts)
	if err != nil {
		return err
	}

	if err := r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Setup run failed", "error", err)
		return err
	}

	return nil
}

// newRunner loads the configuration and wires the real collaborators.
func newRunner(opts *Options) (*runner, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return &runner{
		cfg:       cfg,
		archCheck: artifact.CheckArchitecture,
		host:      hostenv.New(),
		resolver:  release.NewResolver(cfg.ReleaseMetadataURL),
		installer: &install.Reconciler{
			Root:       cfg.InstallRoot,
			Fetcher:    &artifact.Fetcher{},
			ArchiveURL: cfg.ArchiveURL,
		},
		prompter: credentials.NewTerminalPrompter(),
		systemd:  supervisor.NewSystemd(cfg.ServiceName, cfg.UnitFilePath, cfg.SettleDelay),
		follow:   logs.Follow,
	}, nil
}

// Run executes the workflow strictly sequentially:
// 1) Gate on the supported architecture.
// 2) Ensure host prerequisites.
// 3) Resolve the latest published version.
// 4) Reconcile the local install against it.
// 5) Negotiate credentials.
// 6) Reconcile the service unit.
// 7) Follow the service logs until interrupted.
func (r *runner) Run(ctx context.Context) error {
	// The architecture gate precedes every network touch, including the
	// package manager's.
	if err := r.archCheck(); err != nil {
		return err
	}

	logger.Info(ctx, "Checking host prerequisites")

	if err := r.host.Ensure(ctx); err != nil {
		return fmt.Errorf("ensure host prerequisites: %w", err)
	}

	logger.Info(ctx, "Resolving latest published version")

	latest, err := r.resolver.Latest(ctx)
	if err != nil {
		return fmt.Errorf("resolve latest version: %w", err)
	}

	logger.Info(ctx, "Reconciling local install")

	outcome, err := r.installer.Reconcile(ctx, latest)
	if err != nil {
		return fmt.Errorf("reconcile install: %w", err)
	}

	creds, err := r.negotiateCredentials(ctx)
	if err != nil {
		return fmt.Errorf("negotiate credentials: %w", err)
	}

	descriptor := &supervisor.Descriptor{
		ServiceName:      r.cfg.ServiceName,
		Description:      "Skydrift background agent",
		WorkingDirectory: r.cfg.TargetDir(),
		ExecutablePath:   outcome.ExecutablePath,
		Credentials:      creds,
	}

	logger.InfoKV(ctx, "Reconciling service", "service", r.cfg.ServiceName, "version", outcome.Version)

	if err := r.systemd.Reconcile(ctx, descriptor); err != nil {
		return fmt.Errorf("reconcile service: %w", err)
	}

	// Reaching the follow stage is success; the follower returns on
	// operator interrupt.
	return r.follow(ctx, r.cfg.ServiceName)
}

// negotiateCredentials reads the existing service environment back when a
// unit is already installed, then lets the operator confirm or override.
func (r *runner) negotiateCredentials(ctx context.Context) (credentials.Credentials, error) {
	var existing *credentials.Credentials

	if r.systemd.Exists() {
		readBack, err := r.systemd.ReadCredentials(ctx)
		if err != nil {
			return credentials.Credentials{}, err
		}

		existing = readBack
	}

	return credentials.Negotiate(ctx, r.prompter, existing)
}
