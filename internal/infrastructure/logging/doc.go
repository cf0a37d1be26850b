// Package logging provides structured logging for tcplink.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version). Components receive a child logger
// from With and pass it to packages that accept a narrow Logger interface.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	client.SetLogger(logger.With("component", "link"))
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
