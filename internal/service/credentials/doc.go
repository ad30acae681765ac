// Package credentials collects the agent's account credentials, either fresh
// on a first install or by offering overrides of the values read back from
// the existing service environment.
package credentials
