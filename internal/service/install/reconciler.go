package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/skydriftlabs/skydrift-setup/internal/logger"
)

// DefaultFileMode is applied to the agent executable when it lands in the
// live target directory.
const DefaultFileMode os.FileMode = 0o755

var (
	// errNoFetcher indicates the reconciler was built without a fetcher.
	errNoFetcher = errors.New("archive fetcher is not set")

	// errNoExecutable indicates the extracted archive carried no agent
	// executable for the expected version.
	errNoExecutable = errors.New("archive contains no agent executable")
)

// Status reports what a reconciliation pass did.
type Status string

const (
	// StatusSkipped means the installed version already matches the latest tag.
	StatusSkipped Status = "skipped"
	// StatusInstalled means the latest release was fetched and swapped in.
	StatusInstalled Status = "installed"
)

// Outcome is the result of one reconciliation pass.
type Outcome struct {
	// Status says whether an install happened.
	Status Status
	// Version is the version now present in the target directory.
	Version string
	// ExecutablePath is the live agent executable.
	ExecutablePath string
}

// Fetcher downloads an archive URL to a local destination.
type Fetcher interface {
	Fetch(ctx context.Context, url, destination string) error
}

// Reconciler compares the installed version marker against the latest release
// and swaps the new release into the target directory when they differ.
//
// The target directory is exclusively owned: clearing it is unconditional,
// and a failure between clearing and the final move leaves it in an
// undefined state. There is no rollback to the previous install.
type Reconciler struct {
	// Root is the installation root holding the transient archive, the
	// staging directory and the live target/ subdirectory.
	Root string
	// Fetcher downloads release archives.
	Fetcher Fetcher
	// ArchiveURL renders the archive location for a version tag.
	ArchiveURL func(version string) (string, error)
}

// Reconcile brings the target directory to the latest version.
//
// When the installed marker equals latest the pass reports StatusSkipped and
// performs no filesystem mutation. Otherwise it fetches the archive into the
// root, clears (or creates) the target directory, extracts into a private
// staging directory under the root, moves the extracted entries into the
// target, and removes the staging directory and the consumed archive.
func (r *Reconciler) Reconcile(ctx context.Context, latest string) (*Outcome, error) {
	if r.Fetcher == nil {
		return nil, errNoFetcher
	}

	targetDir := filepath.Join(r.Root, "target")

	installed, err := InstalledVersion(targetDir)
	if err != nil {
		return nil, fmt.Errorf("read installed version marker: %w", err)
	}

	if installed != "" && installed == latest {
		logger.InfoKV(ctx, "Installed version is current", "version", installed)

		return &Outcome{
			Status:         StatusSkipped,
			Version:        installed,
			ExecutablePath: filepath.Join(targetDir, AgentExecutablePrefix+installed),
		}, nil
	}

	logger.InfoKV(ctx, "Installing new version",
		"installed", installed, "latest", latest)

	archivePath, err := r.fetchArchive(ctx, latest)
	if err != nil {
		return nil, err
	}

	if err := resetTargetDir(targetDir); err != nil {
		return nil, fmt.Errorf("prepare target directory: %w", err)
	}

	// Extraction never touches the live target directly: a half-extracted
	// tree must not be observable at the target path.
	stagingDir, err := os.MkdirTemp(r.Root, "skydrift-staging-")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	if err := extractArchive(archivePath, stagingDir); err != nil {
		return nil, fmt.Errorf("extract archive: %w", err)
	}

	executablePath, err := promoteStaged(ctx, stagingDir, targetDir, latest)
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, fmt.Errorf("remove staging directory: %w", err)
	}

	if err := os.Remove(archivePath); err != nil {
		return nil, fmt.Errorf("remove consumed archive: %w", err)
	}

	logger.InfoKV(ctx, "Install complete", "version", latest, "executable", executablePath)

	return &Outcome{
		Status:         StatusInstalled,
		Version:        latest,
		ExecutablePath: executablePath,
	}, nil
}

// fetchArchive downloads the release archive for the given version into the
// installation root and returns its local path.
func (r *Reconciler) fetchArchive(ctx context.Context, version string) (string, error) {
	url, err := r.ArchiveURL(version)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.Root, 0o755); err != nil {
		return "", fmt.Errorf("create installation root: %w", err)
	}

	archivePath := filepath.Join(r.Root, AgentExecutablePrefix+version+".tar.gz")
	if err := r.Fetcher.Fetch(ctx, url, archivePath); err != nil {
		return "", fmt.Errorf("fetch archive: %w", err)
	}

	return archivePath, nil
}

// resetTargetDir clears an existing target directory in place, or creates it.
// The directory is exclusively owned by this system, so clearing needs no
// confirmation.
func resetTargetDir(targetDir string) error {
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(targetDir, 0o755)
		}

		return err
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(targetDir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// promoteStaged moves every staged entry into the target directory and
// returns the path of the versioned agent executable.
//
// The executable itself goes through go-update, which writes next to the
// destination and renames into place; auxiliary entries are plain renames
// within the same filesystem.
func promoteStaged(ctx context.Context, stagingDir, targetDir, version string) (string, error) {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return "", fmt.Errorf("read staging directory: %w", err)
	}

	var executablePath string

	for _, entry := range entries {
		var (
			stagedPath = filepath.Join(stagingDir, entry.Name())
			livePath   = filepath.Join(targetDir, entry.Name())
		)

		if entry.IsDir() || !strings.HasPrefix(entry.Name(), AgentExecutablePrefix) {
			if err := os.Rename(stagedPath, livePath); err != nil {
				return "", fmt.Errorf("move %s into target: %w", entry.Name(), err)
			}

			continue
		}

		if err := applyExecutable(stagedPath, livePath); err != nil {
			return "", fmt.Errorf("apply %s: %w", entry.Name(), err)
		}

		logger.DebugKV(ctx, "Applied agent executable", "path", livePath)

		executablePath = livePath
	}

	if executablePath != filepath.Join(targetDir, AgentExecutablePrefix+version) {
		return "", fmt.Errorf("version %s: %w", version, errNoExecutable)
	}

	return executablePath, nil
}

// applyExecutable writes the staged executable to its live path via go-update.
func applyExecutable(stagedPath, livePath string) error {
	stagedFile, err := os.Open(filepath.Clean(stagedPath))
	if err != nil {
		return err
	}

	defer func() {
		_ = stagedFile.Close()
	}()

	// go-update moves the current file aside before renaming the new one in,
	// so a first install needs an empty file to displace.
	if _, err := os.Stat(livePath); err != nil && os.IsNotExist(err) {
		if _, err := os.Create(filepath.Clean(livePath)); err != nil {
			return err
		}
	}

	options := goupdate.Options{
		TargetPath: livePath,
		TargetMode: DefaultFileMode,
	}

	if err := goupdate.Apply(stagedFile, options); err != nil {
		return err
	}

	oldPath := livePath + ".old"
	if _, err := os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}
