// Package logging provides structured logging for lightswitch.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
// main builds one logger and hands component-scoped children to the parts
// that log on their own:
//
//	log := logging.New(cfg.Logging, version)
//	store := state.NewStore(tree, catalog, state.Options{
//		Logger: log.With("component", "state"),
//	})
//	log.Warn("MQTT disconnected", "error", err)
//
// Request logs from the API carry request_id, method, path and status.
//
// # Security
//
// The Firebase service account JSON and OAuth tokens must never be logged.
// Log the project ID or database URL instead.
package logging
