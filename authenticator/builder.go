package authenticator

import (
	"fmt"
	"net"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maxpert/saslauth/auth"
	"github.com/maxpert/saslauth/config"
	"github.com/maxpert/saslauth/interfaces"
	"github.com/maxpert/saslauth/metrics"
)

// Builder provides a fluent API for assembling a configured authenticator
type Builder struct {
	config      *config.ClientConfig
	node        string
	credentials interfaces.CredentialSource
	options     []Option
}

// NewBuilder creates a builder with the default client configuration
func NewBuilder() *Builder {
	return &Builder{
		config: config.DefaultConfig(),
	}
}

// NewBuilderWithConfig creates a builder with the given configuration
func NewBuilderWithConfig(cfg *config.ClientConfig) *Builder {
	return &Builder{
		config: cfg,
	}
}

// WithConfig sets the client configuration
func (b *Builder) WithConfig(cfg *config.ClientConfig) *Builder {
	b.config = cfg
	return b
}

// WithNode names the remote node in logs and errors; defaults to the configured address
func (b *Builder) WithNode(node string) *Builder {
	b.node = node
	return b
}

// WithMechanism overrides the configured mechanism
func (b *Builder) WithMechanism(mechanism string) *Builder {
	b.config.SASL.Mechanism = mechanism
	return b
}

// WithCredentials overrides the credentials derived from the configuration
func (b *Builder) WithCredentials(credentials interfaces.CredentialSource) *Builder {
	b.credentials = credentials
	return b
}

// WithLogger sets the session logger
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.options = append(b.options, WithLogger(logger))
	return b
}

// WithZapLogger creates a logger using zap with the specified level
func (b *Builder) WithZapLogger(level string) *Builder {
	logger, err := config.NewLogger(level, "")
	if err != nil {
		// Fallback to a basic logger if configuration fails
		logger, _ = zap.NewProduction()
	}
	return b.WithLogger(logger)
}

// WithRegistry sets the mechanism registry
func (b *Builder) WithRegistry(registry *auth.Registry) *Builder {
	b.options = append(b.options, WithRegistry(registry))
	return b
}

// WithCodec replaces the handshake codec
func (b *Builder) WithCodec(codec HandshakeCodec) *Builder {
	b.options = append(b.options, WithCodec(codec))
	return b
}

// WithMetrics records session outcomes in the collector
func (b *Builder) WithMetrics(collector *metrics.Collector) *Builder {
	b.options = append(b.options, WithMetrics(collector))
	return b
}

// WithTracerProvider sets where session spans go
func (b *Builder) WithTracerProvider(provider trace.TracerProvider) *Builder {
	b.options = append(b.options, WithTracerProvider(provider))
	return b
}

// SessionConfig derives the per-session settings from the client configuration
func (b *Builder) SessionConfig() Config {
	host := b.config.Network.Address
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	return Config{
		Mechanism:       b.config.SASL.Mechanism,
		ClientID:        b.config.Network.ClientID,
		AuthorizationID: b.config.SASL.AuthorizationID,
		ServiceName:     b.config.SASL.ServiceName,
		Host:            host,
		Options:         b.config.SASL.Options,
		MaxReceiveSize:  b.config.Network.MaxReceiveSize,
	}
}

// Build creates the authenticator and configures it over transport. When
// configuration fails the returned authenticator is FAILED and still needs
// Close.
func (b *Builder) Build(transport interfaces.Transport) (*ClientAuthenticator, error) {
	if b.config == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	node := b.node
	if node == "" {
		node = b.config.Network.Address
	}
	credentials := b.credentials
	if credentials == nil {
		credentials = b.config.Credentials()
	}

	authenticator := New(node, credentials, b.options...)
	if err := authenticator.Configure(transport, b.SessionConfig()); err != nil {
		return authenticator, err
	}
	return authenticator, nil
}
