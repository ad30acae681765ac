// Package logs tails the managed service's journal after a successful
// reconciliation. Purely observational.
package logs
