package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the bhyve bridge.
// All configuration is loaded from YAML and can be overridden by environment
// variables; the variable names match the ones the original gateway deployments
// already use (BHYVE_MQTT_BROKER, BHYVE_MQTT_PORT, ...).
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Keepalive int              `yaml:"keepalive"`
	// ConnectTimeout is the maximum seconds to wait for the broker handshake.
	// The connect path additionally caps the wait at a small ceiling so a hung
	// handshake never blocks a caller for the full configured value.
	ConnectTimeout int                 `yaml:"connect_timeout"`
	CleanSession   bool                `yaml:"clean_session"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
	Will           MQTTWillConfig      `yaml:"will"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnection settings.
//
// Period is the minimum number of seconds between connection attempts;
// MaxRetries is the number of consecutive failures tolerated before the
// bridge gives up and surfaces a terminal error.
type MQTTReconnectConfig struct {
	Period     int `yaml:"period"`
	MaxRetries int `yaml:"max_retries"`
}

// MQTTWillConfig contains Last Will and Testament settings for the
// bhyve/online availability topic.
type MQTTWillConfig struct {
	QoS    int  `yaml:"qos"`
	Retain bool `yaml:"retain"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig contains the Prometheus metrics listener settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads configuration and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults; skipped when path is empty,
//     which supports the original gateway's env-only deployments)
//  3. Environment variables (override file values)
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for env-only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the original gateway's defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:            0,
			Keepalive:      10,
			ConnectTimeout: 120,
			CleanSession:   true,
			Reconnect: MQTTReconnectConfig{
				Period:     5,
				MaxRetries: 10,
			},
			Will: MQTTWillConfig{
				QoS:    0,
				Retain: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9090",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Invalid integer or boolean values leave the prior value in place.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BHYVE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	envInt("BHYVE_MQTT_PORT", &cfg.MQTT.Broker.Port)
	if v := os.Getenv("BHYVE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BHYVE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("BHYVE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	envBool("BHYVE_MQTT_USE_TLS", &cfg.MQTT.Broker.TLS)
	envInt("BHYVE_MQTT_KEEPALIVE", &cfg.MQTT.Keepalive)
	envInt("BHYVE_MQTT_CONNECT_TIMEOUT", &cfg.MQTT.ConnectTimeout)
	envInt("BHYVE_MQTT_RECONNECT_PERIOD", &cfg.MQTT.Reconnect.Period)
	envInt("BHYVE_MQTT_MAX_RETRIES", &cfg.MQTT.Reconnect.MaxRetries)
	envBool("BHYVE_MQTT_CLEAN_SESSION", &cfg.MQTT.CleanSession)
	envInt("BHYVE_MQTT_WILL_QOS", &cfg.MQTT.Will.QoS)
	envBool("BHYVE_MQTT_WILL_RETAIN", &cfg.MQTT.Will.Retain)
	if v := os.Getenv("BHYVE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BHYVE_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = v
	}
}

// envInt overrides dst with the integer value of the named variable, if set
// and parseable.
func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// envBool overrides dst with the boolean value of the named variable, if set.
// Accepts the original gateway's truthy spellings: true/1/yes/on.
func envBool(name string, dst *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		*dst = true
	default:
		*dst = false
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set BHYVE_MQTT_BROKER)")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Will.QoS < 0 || c.MQTT.Will.QoS > 2 {
		errs = append(errs, "mqtt.will.qos must be 0, 1, or 2")
	}
	if c.MQTT.Keepalive < 1 {
		errs = append(errs, "mqtt.keepalive must be at least 1 second")
	}
	if c.MQTT.ConnectTimeout < 1 {
		errs = append(errs, "mqtt.connect_timeout must be at least 1 second")
	}
	if c.MQTT.Reconnect.Period < 1 {
		errs = append(errs, "mqtt.reconnect.period must be at least 1 second")
	}
	if c.MQTT.Reconnect.MaxRetries < 1 {
		errs = append(errs, "mqtt.reconnect.max_retries must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetKeepalive returns the keepalive interval as a Duration.
func (c *MQTTConfig) GetKeepalive() time.Duration {
	return time.Duration(c.Keepalive) * time.Second
}

// GetConnectTimeout returns the connect timeout as a Duration.
func (c *MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetReconnectPeriod returns the reconnect period as a Duration.
func (c *MQTTConfig) GetReconnectPeriod() time.Duration {
	return time.Duration(c.Reconnect.Period) * time.Second
}
