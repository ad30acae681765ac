// Package artifact downloads release archives and gates the workflow on the
// single supported CPU architecture.
package artifact
