// Package log provides structured event capture for a LoRaWAN node.
//
// This package defines the Logger interface and Event types for recording
// what the node did over its lifetime: join attempts and their outcomes,
// backoff waits, state transitions and uplinks. It is separate from
// operational logging (slog) - the event log is a complete machine-readable
// trace for field debugging and analysis.
//
// # Basic Usage
//
//	// For development: events to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For deployments: append to a binary file
//	logger, _ := log.NewFileLogger("/var/lib/loranode/node.llog")
//
//	// Both
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fileLogger)
//
// A Session stamps every event with a timestamp, the DevEUI and a per-run
// UUID so events from several boots can share one file.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys (.llog).
// The lorawan-log CLI views and summarizes them.
package log
