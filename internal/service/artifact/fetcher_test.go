package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCheckArchitecture accepts amd64 and rejects everything else.
func TestCheckArchitecture(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkArchitecture("amd64"))

	err := checkArchitecture("arm64")
	require.ErrorIs(t, err, ErrUnsupportedArchitecture)

	err = checkArchitecture("386")
	require.ErrorIs(t, err, ErrUnsupportedArchitecture)
}

// TestFetch_WritesArchive streams the response body into the destination file.
func TestFetch_WritesArchive(t *testing.T) {
	t.Parallel()

	body := []byte("archive-bytes")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	destination := filepath.Join(t.TempDir(), "agent.tar.gz")

	var f Fetcher

	require.NoError(t, f.Fetch(context.Background(), ts.URL, destination))

	got, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

// TestFetch_BadStatus surfaces non-200 responses as errors.
func TestFetch_BadStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	var f Fetcher

	err := f.Fetch(context.Background(), ts.URL, filepath.Join(t.TempDir(), "agent.tar.gz"))
	require.ErrorIs(t, err, errBadHTTPStatus)
}
