// Package supervisor reconciles the systemd unit running the agent with the
// desired service descriptor: stop-and-settle when running, rewrite the unit
// definition, reload the supervisor, enable and start.
package supervisor
