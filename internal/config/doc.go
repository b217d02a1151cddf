// Package config handles configuration loading for parley.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion and validated before use.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PARLEY_CONFIG environment variable
//  2. ~/.config/parley/parley.yaml (or $XDG_CONFIG_HOME/parley/parley.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  api_key: "${PARLEY_API_KEY}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	backend:
//	  request_timeout: "30s"
//	  stream_timeout: "10m"
//
// # Sections
//
// backend holds the inference backend connection (base_url, app_id,
// api_key, timeouts), database the local state path, and logging the
// level and format (text or json).
package config
