package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Mechanism names understood by the default registry
const (
	MechanismGSSAPI      = "GSSAPI"
	MechanismPlain       = "PLAIN"
	MechanismScramSHA256 = "SCRAM-SHA-256"
	MechanismScramSHA512 = "SCRAM-SHA-512"
	MechanismOAuthBearer = "OAUTHBEARER"
)

// ErrMechanismUnavailable is returned when no factory is registered for a name
var ErrMechanismUnavailable = errors.New("mechanism unavailable")

// Client is the client side of one SASL mechanism, chosen once per session
type Client interface {
	// Name returns the mechanism name (e.g., "PLAIN", "SCRAM-SHA-256")
	Name() string

	// HasInitialResponse reports whether the client speaks first
	HasInitialResponse() bool

	// CreateToken evaluates a server challenge and returns the response.
	// A nil token means there is nothing to send.
	CreateToken(challenge []byte, initial bool) ([]byte, error)

	// IsComplete reports whether the exchange has finished on the client side
	IsComplete() bool

	// Dispose releases mechanism state. Safe to call more than once.
	Dispose() error
}

// MechanismConfig carries everything a factory may need to build a Client
type MechanismConfig struct {
	Mechanism       string
	AuthorizationID string
	ServiceName     string
	Host            string
	Options         map[string]string
	Callbacks       Callbacks
	Logger          *zap.Logger
}

// Option returns a mechanism option or the fallback when unset
func (c MechanismConfig) Option(key, fallback string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (c MechanismConfig) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Factory builds a Client for one session
type Factory func(cfg MechanismConfig) (Client, error)

// Registry manages available mechanism factories
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a new mechanism registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a mechanism factory to the registry
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Get retrieves a mechanism factory by name
func (r *Registry) Get(name string) (Factory, error) {
	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMechanismUnavailable, name)
	}
	return factory, nil
}

// Create looks up the named mechanism and builds a Client for it
func (r *Registry) Create(name string, cfg MechanismConfig) (Client, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	cfg.Mechanism = name
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return factory(cfg)
}

// List returns all registered mechanism names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a space-separated list of mechanism names
func (r *Registry) String() string {
	return strings.Join(r.List(), " ")
}

// DefaultRegistry returns a registry with PLAIN, SCRAM and OAUTHBEARER clients.
// GSSAPI must be registered by the caller.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(MechanismPlain, NewPlainClient)
	registry.Register(MechanismScramSHA256, NewScramSHA256Client)
	registry.Register(MechanismScramSHA512, NewScramSHA512Client)
	registry.Register(MechanismOAuthBearer, NewOAuthBearerClient)
	return registry
}
