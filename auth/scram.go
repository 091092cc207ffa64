package auth

import (
	"errors"

	"github.com/xdg-go/scram"
	"go.uber.org/zap"

	saslerrors "github.com/maxpert/saslauth/errors"
)

// ScramClient implements SCRAM-SHA-256 and SCRAM-SHA-512 with xdg-go/scram
type ScramClient struct {
	mechanism string
	conv      *scram.ClientConversation
	logger    *zap.Logger
	disposed  bool
}

// NewScramSHA256Client builds a SCRAM-SHA-256 client
func NewScramSHA256Client(cfg MechanismConfig) (Client, error) {
	return newScramClient(cfg, MechanismScramSHA256, scram.SHA256)
}

// NewScramSHA512Client builds a SCRAM-SHA-512 client
func NewScramSHA512Client(cfg MechanismConfig) (Client, error) {
	return newScramClient(cfg, MechanismScramSHA512, scram.SHA512)
}

func newScramClient(cfg MechanismConfig, mechanism string, hash scram.HashGeneratorFcn) (Client, error) {
	username, err := cfg.Callbacks.Name("")
	if err != nil {
		return nil, err
	}
	if username == "" {
		return nil, saslerrors.NewConfigurationError(mechanism+" requires a username", mechanism, nil)
	}

	password, err := cfg.Callbacks.Password()
	if err != nil {
		return nil, err
	}

	client, err := hash.NewClient(username, password, "")
	if err != nil {
		return nil, saslerrors.NewConfigurationError("invalid SCRAM credentials", mechanism, err)
	}

	return &ScramClient{
		mechanism: mechanism,
		conv:      client.NewConversation(),
		logger:    cfg.logger(),
	}, nil
}

// Name returns the mechanism name
func (s *ScramClient) Name() string {
	return s.mechanism
}

// HasInitialResponse is always true: the client-first message opens the exchange
func (s *ScramClient) HasInitialResponse() bool {
	return true
}

// CreateToken advances the conversation by one message
func (s *ScramClient) CreateToken(challenge []byte, initial bool) ([]byte, error) {
	if s.disposed {
		return nil, errors.New("SCRAM client disposed")
	}

	response, err := s.conv.Step(string(challenge))
	if err != nil {
		return nil, err
	}

	if s.conv.Done() {
		if !s.conv.Valid() {
			return nil, errors.New("invalid server signature in server final message")
		}
		s.logger.Debug("SCRAM server signature verified", zap.String("mechanism", s.mechanism))
		// nothing follows the server-final message
		return nil, nil
	}
	return []byte(response), nil
}

// IsComplete reports whether the server-final message validated
func (s *ScramClient) IsComplete() bool {
	return s.conv.Done() && s.conv.Valid()
}

// Dispose drops the conversation
func (s *ScramClient) Dispose() error {
	s.disposed = true
	return nil
}
