// Package config loads the janitor application settings.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. A YAML file named by JANITOR_CONFIG, or ./config.yaml
//  3. Default values (lowest priority)
//
// Keys use the same names in the file and the environment:
//
//	CHECK_INTERVAL=60            # seconds between run_loop invocations (required)
//	PROMETHEUS_DIR=/srv/metrics  # multiprocess metrics directory
//	LOGFILE=/var/log/janitor.log # rotating log file
//	LOG_LEVEL=warning            # debug|info|warning|error|critical
//	SERVER_PORT=5000
//
// Nested sections map to prefixed variables: the SERVER section's PORT key
// is SERVER_PORT in the environment.
//
// LOGFILE and LOG_LEVEL are only required when the rotating file handler is
// attached, that is when neither DEBUG nor TESTING is set.
package config
