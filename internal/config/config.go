package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings driving one setup run: where releases are
// published, where the agent is installed, and how its service is named.
type Config struct {
	// ReleaseMetadataURL is the endpoint returning metadata about the latest
	// published agent release (a JSON document carrying a tag_name field).
	ReleaseMetadataURL string `yaml:"release_metadata_url"`
	// ArchiveURLTemplate is the release archive location with a {{.Version}}
	// placeholder substituted with the resolved tag.
	ArchiveURLTemplate string `yaml:"archive_url_template"`
	// InstallRoot is the per-user directory owning the downloaded archive and
	// the live target/ subdirectory. A leading ~ expands to the home directory.
	InstallRoot string `yaml:"install_root"`
	// ServiceName is the systemd unit name (without the .service suffix)
	// running the agent.
	ServiceName string `yaml:"service_name"`
	// UnitFilePath is where the unit definition is written.
	UnitFilePath string `yaml:"unit_file_path"`
	// SettleDelay is how long to wait after stopping the service before the
	// unit definition is rewritten.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

const (
	// DefaultConfigFilename is the default filename for setup settings.
	DefaultConfigFilename = "skydrift-setup.yaml"

	// DefaultReleaseMetadataURL points at the published release metadata.
	DefaultReleaseMetadataURL = "https://api.skydrift.io/agent/releases/latest"

	// DefaultArchiveURLTemplate points at the published release archives.
	DefaultArchiveURLTemplate = "https://releases.skydrift.io/agent/{{.Version}}/skydrift-agent-{{.Version}}-linux-x64.tar.gz"

	// DefaultServiceName is the systemd unit name running the agent.
	DefaultServiceName = "skydrift-agent"

	// DefaultSettleDelay is the wait after a stop request before reconfiguration.
	DefaultSettleDelay = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// defaultInstallRoot is the per-user installation directory.
	defaultInstallRoot = "~/.skydrift"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errMetadataURLRequired is returned when the release metadata URL is missing.
	errMetadataURLRequired = errors.New("release metadata URL must be provided")
	// errArchiveTemplateRequired is returned when the archive URL template is missing.
	errArchiveTemplateRequired = errors.New("archive URL template must be provided")
	// errServiceNameRequired is returned when the service name is missing.
	errServiceNameRequired = errors.New("service name must be provided")
)

// Default returns settings pointing at the published skydrift release
// channels and the conventional per-user installation root.
func Default() *Config {
	return &Config{
		ReleaseMetadataURL: DefaultReleaseMetadataURL,
		ArchiveURLTemplate: DefaultArchiveURLTemplate,
		InstallRoot:        defaultInstallRoot,
		ServiceName:        DefaultServiceName,
		UnitFilePath:       "/etc/systemd/system/" + DefaultServiceName + ".service",
		SettleDelay:        DefaultSettleDelay,
	}
}

// Load reads configuration from the provided path and validates essential
// fields. An empty path yields the defaults without touching the filesystem.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := Validate(cfg); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// expands the installation root, and fills defaulted values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ReleaseMetadataURL == "" {
		return errMetadataURLRequired
	}

	if _, err := url.ParseRequestURI(cfg.ReleaseMetadataURL); err != nil {
		return fmt.Errorf("invalid release metadata URL: %w", err)
	}

	if cfg.ArchiveURLTemplate == "" {
		return errArchiveTemplateRequired
	}

	if cfg.ServiceName == "" {
		return errServiceNameRequired
	}

	if cfg.InstallRoot == "" {
		cfg.InstallRoot = defaultInstallRoot
	}

	expanded, err := expandHome(cfg.InstallRoot)
	if err != nil {
		return fmt.Errorf("resolve install root: %w", err)
	}

	cfg.InstallRoot = expanded

	if cfg.UnitFilePath == "" {
		cfg.UnitFilePath = "/etc/systemd/system/" + cfg.ServiceName + ".service"
	}

	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	return nil
}

// ArchiveURL renders the archive URL template with the provided version tag.
func (c *Config) ArchiveURL(version string) (string, error) {
	tmpl, err := template.New("archive-url").Parse(c.ArchiveURLTemplate)
	if err != nil {
		return "", fmt.Errorf("parse archive URL template: %w", err)
	}

	var rendered strings.Builder
	if err := tmpl.Execute(&rendered, struct{ Version string }{Version: version}); err != nil {
		return "", fmt.Errorf("render archive URL template: %w", err)
	}

	if _, err := url.ParseRequestURI(rendered.String()); err != nil {
		return "", fmt.Errorf("invalid archive URL: %w", err)
	}

	return rendered.String(), nil
}

// TargetDir returns the live install directory under the installation root.
func (c *Config) TargetDir() string {
	return filepath.Join(c.InstallRoot, "target")
}

// expandHome substitutes a leading ~ with the current user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
