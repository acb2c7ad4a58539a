// Package config loads runtime configuration for the course alerts CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Environment variables prefixed with COURSE_ALERTS_.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string     backend base URL
//	-d string     local database path
//	-t duration   per-request timeout
//	-l string     log level
//
// # JSON schema
//
//	{
//	  "backend_url": "https://alerts.example.com",
//	  "database_path": "/home/me/.config/course-alerts/client.db",
//	  "request_timeout": "15s",
//	  "search_debounce": "300ms",
//	  "log_level": "info"
//	}
//
// Environment
//
//	COURSE_ALERTS_BACKEND_URL, COURSE_ALERTS_DB_PATH,
//	COURSE_ALERTS_REQUEST_TIMEOUT, COURSE_ALERTS_SEARCH_DEBOUNCE,
//	COURSE_ALERTS_LOG_LEVEL
package config
