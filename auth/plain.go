package auth

import (
	"fmt"

	"github.com/emersion/go-sasl"

	saslerrors "github.com/maxpert/saslauth/errors"
)

// PlainClient implements SASL PLAIN on top of go-sasl.
// The initial response is [authzid] NUL authcid NUL passwd and completes the exchange.
type PlainClient struct {
	client   sasl.Client
	complete bool
}

// NewPlainClient resolves identity and secret through the callbacks
func NewPlainClient(cfg MechanismConfig) (Client, error) {
	username, err := cfg.Callbacks.Name("")
	if err != nil {
		return nil, err
	}
	if username == "" {
		return nil, saslerrors.NewConfigurationError("PLAIN requires a username", cfg.Mechanism, nil)
	}

	password, err := cfg.Callbacks.Password()
	if err != nil {
		return nil, err
	}

	identity := ""
	if cfg.AuthorizationID != "" {
		authorized, ok := cfg.Callbacks.Authorize(username, cfg.AuthorizationID)
		if !ok {
			return nil, saslerrors.NewConfigurationError(
				fmt.Sprintf("user '%s' may not act as '%s'", username, cfg.AuthorizationID), cfg.Mechanism, nil)
		}
		identity = authorized
	}

	return &PlainClient{
		client: sasl.NewPlainClient(identity, username, password),
	}, nil
}

// Name returns the mechanism name
func (p *PlainClient) Name() string {
	return MechanismPlain
}

// HasInitialResponse is always true for PLAIN
func (p *PlainClient) HasInitialResponse() bool {
	return true
}

// CreateToken returns the credentials message on the initial call
func (p *PlainClient) CreateToken(challenge []byte, initial bool) ([]byte, error) {
	if !initial {
		return p.client.Next(challenge)
	}

	_, ir, err := p.client.Start()
	if err != nil {
		return nil, err
	}
	p.complete = true
	return ir, nil
}

// IsComplete reports whether the credentials have been produced
func (p *PlainClient) IsComplete() bool {
	return p.complete
}

// Dispose has nothing to release
func (p *PlainClient) Dispose() error {
	return nil
}
