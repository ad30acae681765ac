package install

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// errPathEscape indicates an archive entry pointing outside the extraction root.
var errPathEscape = errors.New("archive entry escapes extraction directory")

// extractArchive unpacks a gzip-compressed tar archive into destination.
// Entries resolving outside destination are rejected.
func extractArchive(archivePath, destination string) error {
	archiveFile, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = archiveFile.Close()
	}()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("read archive compression: %w", err)
	}

	defer func() {
		_ = gzipReader.Close()
	}()

	tarReader := tar.NewReader(gzipReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read archive entry: %w", err)
		}

		entryPath, err := securePath(destination, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(entryPath, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := extractRegularFile(tarReader, entryPath, header); err != nil {
				return err
			}
		default:
			// Links and special files are not part of release archives.
			continue
		}
	}
}

// extractRegularFile writes one regular archive entry, preserving its mode.
func extractRegularFile(tarReader *tar.Reader, entryPath string, header *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(entryPath), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", header.Name, err)
	}

	outputFile, err := os.OpenFile(
		filepath.Clean(entryPath),
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC,
		header.FileInfo().Mode().Perm(),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", header.Name, err)
	}

	//nolint:gosec // Release archives are size-bounded by the publisher.
	if _, err := io.Copy(outputFile, tarReader); err != nil {
		_ = outputFile.Close()

		return fmt.Errorf("extract %s: %w", header.Name, err)
	}

	return outputFile.Close()
}

// securePath joins name under root and rejects traversal outside root.
func securePath(root, name string) (string, error) {
	joined := filepath.Join(root, name)
	if joined != root && !strings.HasPrefix(joined, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%s: %w", name, errPathEscape)
	}

	return joined, nil
}
