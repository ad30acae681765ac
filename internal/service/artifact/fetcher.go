package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/skydriftlabs/skydrift-setup/internal/logger"
)

// supportedArchitecture is the single CPU family release archives are
// published for.
const supportedArchitecture = "amd64"

var (
	// ErrUnsupportedArchitecture indicates the host CPU family has no
	// published release archive.
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")

	// errBadHTTPStatus indicates an unexpected response status.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// CheckArchitecture fails fast when the host CPU family has no published
// archive. It must be called before any network activity.
func CheckArchitecture() error {
	return checkArchitecture(runtime.GOARCH)
}

func checkArchitecture(goarch string) error {
	if goarch != supportedArchitecture {
		return fmt.Errorf("%s: %w", goarch, ErrUnsupportedArchitecture)
	}

	return nil
}

// Fetcher downloads release archives to local storage.
type Fetcher struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Fetch streams the archive at url into destination. A failed download is
// fatal to the workflow; there is no resume of partial downloads.
func (f *Fetcher) Fetch(ctx context.Context, url, destination string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	response, err := client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", url, response.Status, errBadHTTPStatus)
	}

	outputFile, err := os.Create(filepath.Clean(destination))
	if err != nil {
		return err
	}

	written, err := io.Copy(outputFile, response.Body)
	if err != nil {
		_ = outputFile.Close()

		return err
	}

	if err := outputFile.Close(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Downloaded archive", "path", destination, "bytes", written)

	return nil
}
