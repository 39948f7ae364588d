// Package config loads the console configuration.
//
// Values come from three layers, later layers winning:
//
//  1. Default()
//  2. a YAML file (DISTCONSOLE_CONFIG_FILE, config.yaml or configs/config.yaml)
//  3. DISTCONSOLE_* environment variables that are explicitly set
//
// Examples:
//
//	DISTCONSOLE_SERVER_PORT=8080
//	DISTCONSOLE_UPSTREAM_BASE_URL=http://localhost:8000/api
//	DISTCONSOLE_DISTRIBUTION_POLL_INTERVAL=5s
//	DISTCONSOLE_LOGGING_OUTPUT=both
//
// Load validates the result and returns an error for values the console
// cannot start with.
package config
