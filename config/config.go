package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/maxpert/saslauth/auth"
	"github.com/maxpert/saslauth/interfaces"
	"github.com/maxpert/saslauth/protocol"
)

// EnvPrefix marks environment variables that override file settings.
// Nested keys are separated by a double underscore, e.g.
// SASLAUTH_SASL__MECHANISM=PLAIN.
const EnvPrefix = "SASLAUTH_"

// DefaultConfig creates a configuration with sensible defaults
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Network: NetworkConfig{
			Address:        "localhost:9092",
			ClientID:       "sasl-probe",
			DialTimeout:    10 * time.Second,
			AuthTimeout:    30 * time.Second,
			PollInterval:   100 * time.Millisecond,
			MaxReceiveSize: protocol.DefaultMaxReceiveSize,
		},
		SASL: SASLConfig{
			Mechanism:   auth.MechanismPlain,
			ServiceName: "kafka",
			Options:     make(map[string]string),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Port:      9469,
			Namespace: "sasl_client",
		},
	}
}

// ClientConfig is the full configuration of a SASL client
type ClientConfig struct {
	Network NetworkConfig `koanf:"network" yaml:"network"`
	SASL    SASLConfig    `koanf:"sasl" yaml:"sasl"`
	Logging LoggingConfig `koanf:"logging" yaml:"logging"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
}

// NetworkConfig holds connection settings
type NetworkConfig struct {
	// Address of the broker, host:port
	Address string `koanf:"address" yaml:"address"`

	// ClientID is sent in every request header
	ClientID string `koanf:"client_id" yaml:"client_id"`

	DialTimeout  time.Duration `koanf:"dial_timeout" yaml:"dial_timeout"`
	AuthTimeout  time.Duration `koanf:"auth_timeout" yaml:"auth_timeout"`
	PollInterval time.Duration `koanf:"poll_interval" yaml:"poll_interval"`

	// MaxReceiveSize bounds inbound frames; negative disables the bound
	MaxReceiveSize int `koanf:"max_receive_size" yaml:"max_receive_size"`
}

// SASLConfig holds mechanism and credential settings
type SASLConfig struct {
	Mechanism string `koanf:"mechanism" yaml:"mechanism"`
	Username  string `koanf:"username" yaml:"username"`
	Password  string `koanf:"password" yaml:"password"`

	// Principal is reported once authenticated; defaults to Username
	Principal string `koanf:"principal" yaml:"principal,omitempty"`

	AuthorizationID string            `koanf:"authorization_id" yaml:"authorization_id,omitempty"`
	ServiceName     string            `koanf:"service_name" yaml:"service_name"`
	Options         map[string]string `koanf:"options" yaml:"options,omitempty"`
}

// LoggingConfig selects the log level and an optional output file
type LoggingConfig struct {
	Level string `koanf:"level" yaml:"level"`
	File  string `koanf:"file" yaml:"file,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled" yaml:"enabled"`
	Port      int    `koanf:"port" yaml:"port"`
	Namespace string `koanf:"namespace" yaml:"namespace"`
}

// Validate validates the configuration
func (c *ClientConfig) Validate() error {
	// Validate network configuration
	if c.Network.Address == "" {
		return fmt.Errorf("network address cannot be empty")
	}

	if c.Network.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive: %v", c.Network.DialTimeout)
	}

	if c.Network.AuthTimeout <= 0 {
		return fmt.Errorf("auth timeout must be positive: %v", c.Network.AuthTimeout)
	}

	if c.Network.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %v", c.Network.PollInterval)
	}

	// Validate SASL configuration
	if c.SASL.Mechanism == "" {
		return fmt.Errorf("SASL mechanism cannot be empty")
	}

	// Validate logging configuration
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate metrics configuration
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	return nil
}

// Credentials returns the credential source described by the SASL section
func (c *ClientConfig) Credentials() *auth.StaticCredentials {
	principal := c.SASL.Principal
	if principal == "" {
		principal = c.SASL.Username
	}

	var principals []string
	if principal != "" {
		principals = []string{principal}
	}

	var creds []interfaces.Credential
	if c.SASL.Username != "" || c.SASL.Password != "" {
		creds = append(creds, interfaces.Credential{Identity: c.SASL.Username, Secret: c.SASL.Password})
	}
	return auth.NewStaticCredentials(principals, creds...)
}

// Load reads configuration from a YAML (or JSON) file on top of the
// defaults, then applies SASLAUTH_ environment overrides. An empty path
// skips the file.
func Load(path string) (*ClientConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, EnvPrefix)
			key = strings.ReplaceAll(strings.ToLower(key), "__", ".")
			return key, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file
func (c *ClientConfig) Save(destination string) error {
	// Ensure destination directory exists
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}

	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(destination, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}
