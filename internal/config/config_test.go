package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and defaulting behavior.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing metadata URL.
	err := Validate(&Config{})
	require.Error(t, err)

	// Bad metadata URL.
	err = Validate(&Config{
		ReleaseMetadataURL: "not a url",
		ArchiveURLTemplate: "https://releases.example.com/{{.Version}}.tar.gz",
		ServiceName:        "agent",
	})
	require.Error(t, err)

	// Missing service name.
	err = Validate(&Config{
		ReleaseMetadataURL: "https://api.example.com/latest",
		ArchiveURLTemplate: "https://releases.example.com/{{.Version}}.tar.gz",
	})
	require.Error(t, err)

	// Valid settings get defaults filled in.
	cfg := &Config{
		ReleaseMetadataURL: "https://api.example.com/latest",
		ArchiveURLTemplate: "https://releases.example.com/{{.Version}}.tar.gz",
		ServiceName:        "agent",
		InstallRoot:        t.TempDir(),
	}

	require.NoError(t, Validate(cfg))
	require.Equal(t, "/etc/systemd/system/agent.service", cfg.UnitFilePath)
	require.Equal(t, DefaultSettleDelay, cfg.SettleDelay)
}

// TestValidateExpandsHome ensures a leading ~ in the install root is expanded.
func TestValidateExpandsHome(t *testing.T) {
	cfg := Default()
	cfg.InstallRoot = "~/.skydrift"

	require.NoError(t, Validate(cfg))
	require.NotContains(t, cfg.InstallRoot, "~")
	require.True(t, filepath.IsAbs(cfg.InstallRoot))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		ReleaseMetadataURL: "https://api.example.com/latest",
		ArchiveURLTemplate: "https://releases.example.com/{{.Version}}.tar.gz",
		InstallRoot:        dir,
		ServiceName:        "agent",
		SettleDelay:        2 * time.Second,
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ReleaseMetadataURL, loaded.ReleaseMetadataURL)
	require.Equal(t, cfg.ArchiveURLTemplate, loaded.ArchiveURLTemplate)
	require.Equal(t, cfg.ServiceName, loaded.ServiceName)
	require.Equal(t, 2*time.Second, loaded.SettleDelay)
}

// TestLoadEmptyPathUsesDefaults ensures an absent config file is not required.
func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultReleaseMetadataURL, cfg.ReleaseMetadataURL)
	require.Equal(t, DefaultServiceName, cfg.ServiceName)
}

// TestArchiveURL renders the version tag into the template.
func TestArchiveURL(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ArchiveURLTemplate: "https://releases.example.com/agent/{{.Version}}/agent-{{.Version}}.tar.gz",
	}

	got, err := cfg.ArchiveURL("v0.0.400")
	require.NoError(t, err)
	require.Equal(t, "https://releases.example.com/agent/v0.0.400/agent-v0.0.400.tar.gz", got)

	_, err = (&Config{ArchiveURLTemplate: "{{.Version"}).ArchiveURL("v1")
	require.Error(t, err)
}
