// Package config provides configuration management for the LRO poller.
//
// This package handles loading configuration from YAML files, applying
// environment variable overrides, setting defaults, and validating the
// configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. YAML configuration file
//  3. Default values (lowest priority)
//
// Supported environment variables:
//   - AZURE_LRO_LOG_LEVEL: Log level (debug, info, warn, error)
//   - AZURE_LRO_DEFAULT_POLL_DELAY_MS: Delay between polls when the service sends no hint
//   - AZURE_LRO_HTTP_PORT: HTTP server port (1-65535)
//   - AZURE_LRO_CHECKPOINT_BACKEND: file, redis or blob
//   - AZURE_LRO_REDIS_URL: Redis URL for the redis backend
//   - AZURE_LRO_MAX_CONCURRENT: Operations the watcher polls at once
//
// Example configuration file (config.yaml):
//
//	log_level: "info"
//	log_format: "json"
//	default_poll_delay_ms: 30000
//	http_port: 8080
//	api_timeout: 30
//
//	transport:
//	  endpoint: "https://management.azure.com"
//	  retry_max_elapsed_seconds: 120
//
//	checkpoint:
//	  backend: "redis"
//	  redis_url: "redis://localhost:6379/0"
//
//	watcher:
//	  max_concurrent: 8
//	  rescan_interval_seconds: 30
//
// Example usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//		log.Fatalf("Failed to load config: %v", err)
//	}
package config
