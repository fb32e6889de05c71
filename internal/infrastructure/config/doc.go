// Package config loads and validates bridge configuration.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then BHYVE_* environment variables. The environment variable names are
// kept compatible with the original gateway so existing deployments carry
// over unchanged.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := mqtt.NewClient(cfg.MQTT)
package config
