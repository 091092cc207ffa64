package config

import (
	"time"
)

// ConfigBuilder provides a fluent API for building configuration
type ConfigBuilder struct {
	config *ClientConfig
}

// NewConfigBuilder creates a new configuration builder with defaults
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: DefaultConfig(),
	}
}

// FromConfig creates a builder from an existing configuration
func FromConfig(config *ClientConfig) *ConfigBuilder {
	builder := NewConfigBuilder()
	*builder.config = *config
	builder.config.SASL.Options = make(map[string]string, len(config.SASL.Options))
	for k, v := range config.SASL.Options {
		builder.config.SASL.Options[k] = v
	}
	return builder
}

// Network Configuration

// WithAddress sets the broker address
func (b *ConfigBuilder) WithAddress(address string) *ConfigBuilder {
	b.config.Network.Address = address
	return b
}

// WithClientID sets the client id sent in request headers
func (b *ConfigBuilder) WithClientID(clientID string) *ConfigBuilder {
	b.config.Network.ClientID = clientID
	return b
}

// WithTimeouts sets the dial and authentication timeouts
func (b *ConfigBuilder) WithTimeouts(dial, auth time.Duration) *ConfigBuilder {
	b.config.Network.DialTimeout = dial
	b.config.Network.AuthTimeout = auth
	return b
}

// WithPollInterval sets how long the drive loop waits for readiness
func (b *ConfigBuilder) WithPollInterval(interval time.Duration) *ConfigBuilder {
	b.config.Network.PollInterval = interval
	return b
}

// WithMaxReceiveSize bounds inbound frames
func (b *ConfigBuilder) WithMaxReceiveSize(size int) *ConfigBuilder {
	b.config.Network.MaxReceiveSize = size
	return b
}

// SASL Configuration

// WithMechanism sets the SASL mechanism
func (b *ConfigBuilder) WithMechanism(mechanism string) *ConfigBuilder {
	b.config.SASL.Mechanism = mechanism
	return b
}

// WithCredentials sets the username and password
func (b *ConfigBuilder) WithCredentials(username, password string) *ConfigBuilder {
	b.config.SASL.Username = username
	b.config.SASL.Password = password
	return b
}

// WithPrincipal overrides the principal reported after authentication
func (b *ConfigBuilder) WithPrincipal(principal string) *ConfigBuilder {
	b.config.SASL.Principal = principal
	return b
}

// WithAuthorizationID requests acting as another identity
func (b *ConfigBuilder) WithAuthorizationID(id string) *ConfigBuilder {
	b.config.SASL.AuthorizationID = id
	return b
}

// WithServiceName sets the service name used by ticket-based mechanisms
func (b *ConfigBuilder) WithServiceName(name string) *ConfigBuilder {
	b.config.SASL.ServiceName = name
	return b
}

// WithOption sets a mechanism-specific option
func (b *ConfigBuilder) WithOption(key, value string) *ConfigBuilder {
	if b.config.SASL.Options == nil {
		b.config.SASL.Options = make(map[string]string)
	}
	b.config.SASL.Options[key] = value
	return b
}

// Logging and Metrics Configuration

// WithLogging configures logging settings
func (b *ConfigBuilder) WithLogging(level, logFile string) *ConfigBuilder {
	b.config.Logging.Level = level
	b.config.Logging.File = logFile
	return b
}

// WithMetrics enables the metrics endpoint on the given port
func (b *ConfigBuilder) WithMetrics(port int) *ConfigBuilder {
	b.config.Metrics.Enabled = true
	b.config.Metrics.Port = port
	return b
}

// Build returns the configured ClientConfig
func (b *ConfigBuilder) Build() (*ClientConfig, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return b.config, nil
}

// BuildUnsafe returns the configured ClientConfig without validation
func (b *ConfigBuilder) BuildUnsafe() *ClientConfig {
	return b.config
}
