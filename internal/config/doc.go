// Package config loads and validates relay configuration.
//
// Configuration is YAML with ${ENV} expansion. Defaults cover a working
// local setup; Validate catches the rest before startup.
package config
