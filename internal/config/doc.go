// Package config handles configuration loading for debuglet binaries.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The agent and the controller share one file format and read
// the sections they need; each validates its own part.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${DEBUGLET_JWT_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agent:
//	  backoff_start: "1s"
//	  backoff_max: "10m"
//
// # Configuration Sections
//
// Agent side:
//
//	controller:
//	  addr: "localhost:50061"
//	  insecure: true
//	  token: "${DEBUGLET_TOKEN}"
//	debuggee:
//	  project: "shop"
//	  service: "checkout"
//	  version: "v42"
//	agent:
//	  max_queue_size: 1000
//	  delivery_timeout: "10s"
//	quota:
//	  time: "50ms"
//	  count: 10
//
// Controller side:
//
//	server:
//	  grpc_addr: "0.0.0.0:50061"
//	  http_addr: "0.0.0.0:8061"
//	  wait_timeout: "40s"
//	database:
//	  path: "/var/lib/debuglet/controller.db"
//
// Both:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/debuglet/agent.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ValidateAgent(); err != nil {
//	    log.Fatal(err)
//	}
//	logger := config.NewLogger(cfg.Logging, os.Stderr)
package config
