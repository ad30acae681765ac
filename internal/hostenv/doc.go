// Package hostenv checks and repairs host-level prerequisites before the
// setup workflow touches the network or the service manager.
package hostenv
