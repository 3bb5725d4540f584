// Package logging provides structured logging for Shopfloor Core.
//
// It wraps the standard library log/slog with configuration-driven setup:
// output format (JSON or text), level filtering, and default fields
// (service name, version) attached to every record.
//
// Components that only need a subset of logging accept their own small
// Logger interface and receive this package's *Logger (or a noop) from
// the composition root in main.
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("machine registered", "machine_id", 7)
//
//	monitorLog := log.With("component", "monitor")
package logging
