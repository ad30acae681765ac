// Package setup orchestrates the update-and-reconcile workflow: resolve the
// latest release, install it when the local marker is stale, negotiate
// credentials, reconcile the service unit and follow its logs.
//
// Execution is strictly sequential; the first failing stage aborts the run.
package setup
