// Package logging provides structured logging for the bhyve bridge.
//
// It wraps the standard library's log/slog with configuration-driven
// level, format and output selection, and stamps every record with the
// service name and build version.
//
// # Usage
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("bridge started", "broker", cfg.MQTT.Broker.Host)
//
//	routerLog := log.With("component", "router")
package logging
