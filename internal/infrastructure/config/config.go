package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables recognised by Load.
const (
	EnvBrokerHost      = "MQTT_BROKER_HOST"
	EnvBrokerPort      = "MQTT_BROKER_PORT"
	EnvClientID        = "MQTT_CLIENT_ID"
	EnvLogLevel        = "STATUSLOGGER_LOG_LEVEL"
	EnvReconnectPolicy = "STATUSLOGGER_RECONNECT_POLICY"
)

// Reconnect policy names accepted in mqtt.reconnect.policy.
const (
	ReconnectNone        = "none"
	ReconnectFixed       = "fixed"
	ReconnectExponential = "exponential"
)

var (
	// ErrInvalidConfig is returned when the loaded configuration fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrInvalidPort is returned when a port value is not an integer in 1-65535.
	ErrInvalidPort = errors.New("config: port must be an integer between 1 and 65535")
)

// EnvError reports an environment variable whose value could not be coerced.
type EnvError struct {
	Key   string
	Value string
	Err   error
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("config: %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *EnvError) Unwrap() error {
	return e.Err
}

// Config is the root configuration structure for statuslogger.
// Defaults are overridden by an optional YAML file, then by the environment.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Sinks   SinksConfig   `yaml:"sinks"`
	Logging LoggingConfig `yaml:"logging"`
	Health  HealthConfig  `yaml:"health"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keepalive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTReconnectConfig selects what happens after a refused connect or a lost
// connection. Delays are in seconds.
type MQTTReconnectConfig struct {
	Policy       string `yaml:"policy"`
	InitialDelay int    `yaml:"initial_delay"`
	MaxDelay     int    `yaml:"max_delay"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

// SinksConfig contains the paths of the two append-only record files.
type SinksConfig struct {
	MessagesPath string `yaml:"messages_path"`
	ErrorsPath   string `yaml:"errors_path"`
}

// LoggingConfig contains operational logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HealthConfig contains the optional HTTP health endpoint settings.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is non-empty
//  3. The dotenv file at envFile, if it exists (never overrides variables
//     already present in the process environment)
//  4. Environment variables
//
// A malformed MQTT_BROKER_PORT is fatal: Load returns an *EnvError wrapping
// ErrInvalidPort rather than falling back to the default.
func Load(path, envFile string) (*Config, error) {
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

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading env file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the documented defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mqtt_subscriber",
			},
			QoS:       0,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				Policy:       ReconnectExponential,
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Sinks: SinksConfig{
			MessagesPath: "received_messages.log",
			ErrorsPath:   "errors.log",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Health: HealthConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8081,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvBrokerHost); ok {
		cfg.MQTT.Broker.Host = v
	}
	if v, ok := os.LookupEnv(EnvBrokerPort); ok {
		port, err := parsePort(v)
		if err != nil {
			return &EnvError{Key: EnvBrokerPort, Value: v, Err: err}
		}
		cfg.MQTT.Broker.Port = port
	}
	if v, ok := os.LookupEnv(EnvClientID); ok {
		cfg.MQTT.Broker.ClientID = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvReconnectPolicy); v != "" {
		cfg.MQTT.Reconnect.Policy = strings.ToLower(v)
	}

	return nil
}

// parsePort converts a textual port to an int in the valid TCP range.
func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPort, err)
	}
	if port < 1 || port > 65535 {
		return 0, ErrInvalidPort
	}
	return port, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive <= 0 {
		errs = append(errs, "mqtt.keepalive must be positive")
	}

	switch c.MQTT.Reconnect.Policy {
	case ReconnectNone:
	case ReconnectFixed, ReconnectExponential:
		if c.MQTT.Reconnect.InitialDelay <= 0 {
			errs = append(errs, "mqtt.reconnect.initial_delay must be positive")
		}
		if c.MQTT.Reconnect.Policy == ReconnectExponential && c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
			errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
		}
		if c.MQTT.Reconnect.MaxAttempts < 0 {
			errs = append(errs, "mqtt.reconnect.max_attempts must not be negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("mqtt.reconnect.policy %q is not one of none, fixed, exponential", c.MQTT.Reconnect.Policy))
	}

	if c.Sinks.MessagesPath == "" {
		errs = append(errs, "sinks.messages_path is required")
	}
	if c.Sinks.ErrorsPath == "" {
		errs = append(errs, "sinks.errors_path is required")
	}

	if c.Health.Enabled && (c.Health.Port < 1 || c.Health.Port > 65535) {
		errs = append(errs, "health.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// GetKeepAlive returns the MQTT keepalive interval as a Duration.
func (c MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// GetInitialDelay returns the first reconnect delay as a Duration.
func (c MQTTReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelay) * time.Second
}

// GetMaxDelay returns the reconnect delay ceiling as a Duration.
func (c MQTTReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.MaxDelay) * time.Second
}
