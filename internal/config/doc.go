// Package config handles configuration loading for the aichat service.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and a filesystem watcher for hot reloads.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${AICHAT_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	conversations:
//	  unload_grace_period: "5s"
//	  content_cleanup_window: "10m"
//	  content_cleanup_interval: "1m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Database:
//
//	database:
//	  path: "/var/lib/aichat/conversations.db"
//
// Conversation lifecycle timing:
//
//	conversations:
//	  unload_grace_period: "5s"
//	  content_cleanup_window: "10m"
//	  content_cleanup_interval: "1m"
//
// Models:
//
//	models:
//	  - key: "basic"
//	    name: "Basic"
//	    max_associated_content_length: 8000
//	    default: true
//	  - key: "advanced"
//	    name: "Advanced"
//	    max_associated_content_length: 32000
//	    premium_only: true
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Database path presence
//   - At least one model, with unique non-empty keys
//   - Duration format validity
//
// # Hot Reload
//
// Watcher monitors the config file and delivers each successfully parsed
// Config to its callback. A reload that fails to parse or validate keeps the
// previous configuration in effect:
//
//	w, err := config.NewWatcher(path, onReload, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
package config
