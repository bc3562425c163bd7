// Package config handles configuration loading for interview-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and typed duration parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	remote:
//	  api_key: "${INTERVIEW_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string, which
// fails validation for required fields.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	remote:
//	  timeout: "30s"
//	  retry_delay: "500ms"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/interview-gateway/gateway.db"
//
// Remote AI platform:
//
//	remote:
//	  api_server: "https://live-api.example.com"
//	  api_key: "${INTERVIEW_API_KEY}"
//	  timeout: "30s"
//	  retry_delay: "500ms"
//	  max_retries: 10
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${INTERVIEW_JWT_SECRET}"
//	  token_epoch: "2026-01-15T00:00:00Z"  # optional, revokes older tokens
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/interview-gateway/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
