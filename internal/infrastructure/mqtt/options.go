package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/bhyve-bridge/internal/infrastructure/config"
)

const (
	// connectWaitCeiling bounds how long Connect blocks on a single
	// attempt regardless of the configured connect timeout, so the
	// supervision loop keeps control over retry pacing.
	connectWaitCeiling = 10 * time.Second

	// publishTimeout bounds how long a publish waits for broker
	// acknowledgement before reporting failure.
	publishTimeout = 5 * time.Second

	// subscribeTimeout bounds subscribe and unsubscribe round-trips.
	subscribeTimeout = 5 * time.Second

	// disconnectQuiesce is the milliseconds allowed for in-flight
	// messages to drain during a graceful disconnect.
	disconnectQuiesce = 1000

	// maxPayloadSize rejects absurdly large outbound payloads before
	// they reach the broker.
	maxPayloadSize = 256 * 1024
)

// buildClientOptions translates bridge configuration into paho client
// options.
//
// Automatic reconnection is deliberately disabled: the bridge owns retry
// pacing, attempt counting and the failure budget, so paho must not race
// it with its own reconnect loop.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = "bhyve-bridge-" + uuid.NewString()[:8]
	}
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetKeepAlive(cfg.GetKeepalive())
	opts.SetConnectTimeout(cfg.GetConnectTimeout())
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)

	// Last will: the broker announces unavailability on our behalf if the
	// session dies without a graceful disconnect.
	opts.SetWill(Topics{}.Online(), "false", byte(cfg.Will.QoS), cfg.Will.Retain)

	return opts
}

// connectWait returns the bounded wait applied to a single connection
// attempt.
func connectWait(cfg config.MQTTConfig) time.Duration {
	wait := cfg.GetConnectTimeout()
	if wait > connectWaitCeiling || wait <= 0 {
		wait = connectWaitCeiling
	}
	return wait
}
