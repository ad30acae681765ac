// Package release resolves the latest published agent version from the
// remote release metadata endpoint, with bounded retries.
package release
