// Package config defines the settings used by the setup binary and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds the release metadata endpoint, the archive URL
// template, the per-user installation root and the managed service identity.
package config
