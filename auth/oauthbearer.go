package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	saslerrors "github.com/maxpert/saslauth/errors"
)

// OAUTHBEARER mechanism options
const (
	// OptionUnsecuredSubject mints an unsecured token for this subject when no token is configured
	OptionUnsecuredSubject = "unsecuredLoginStringClaim_sub"

	// OptionUnsecuredLifetime is the unsecured token lifetime in seconds
	OptionUnsecuredLifetime = "unsecuredLoginLifetimeSeconds"
)

const defaultUnsecuredLifetime = time.Hour

// OAuthBearerClient implements RFC 7628 OAUTHBEARER on top of go-sasl
type OAuthBearerClient struct {
	client   sasl.Client
	complete bool
}

// NewOAuthBearerClient uses the configured secret as the bearer token, or
// mints an unsecured JWT when the unsecured subject option is set
func NewOAuthBearerClient(cfg MechanismConfig) (Client, error) {
	token, err := cfg.Callbacks.Password()
	if err != nil {
		subject := cfg.Option(OptionUnsecuredSubject, "")
		if subject == "" {
			return nil, err
		}

		lifetime := defaultUnsecuredLifetime
		if raw := cfg.Option(OptionUnsecuredLifetime, ""); raw != "" {
			seconds, convErr := strconv.Atoi(raw)
			if convErr != nil || seconds <= 0 {
				return nil, saslerrors.NewConfigurationError(
					fmt.Sprintf("invalid %s: %q", OptionUnsecuredLifetime, raw), cfg.Mechanism, convErr)
			}
			lifetime = time.Duration(seconds) * time.Second
		}

		token, err = UnsecuredToken(subject, lifetime, time.Now())
		if err != nil {
			return nil, saslerrors.NewConfigurationError("failed to create unsecured token", cfg.Mechanism, err)
		}
		cfg.logger().Warn("Using unsecured OAUTHBEARER token", zap.String("subject", subject))
	}

	return &OAuthBearerClient{
		client: sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{Token: token}),
	}, nil
}

// UnsecuredToken builds an alg=none JWT carrying sub, iat and exp
func UnsecuredToken(subject string, lifetime time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
}

// Name returns the mechanism name
func (o *OAuthBearerClient) Name() string {
	return MechanismOAuthBearer
}

// HasInitialResponse is always true: the token travels in the first message
func (o *OAuthBearerClient) HasInitialResponse() bool {
	return true
}

// CreateToken sends the token first; afterwards an empty challenge is success
// and anything else is the server's JSON error status
func (o *OAuthBearerClient) CreateToken(challenge []byte, initial bool) ([]byte, error) {
	if initial {
		_, ir, err := o.client.Start()
		return ir, err
	}

	if len(challenge) == 0 {
		o.complete = true
		return nil, nil
	}

	if _, err := o.client.Next(challenge); err != nil {
		return nil, fmt.Errorf("server rejected token: %w", err)
	}
	return nil, fmt.Errorf("server rejected token")
}

// IsComplete reports whether the server accepted the token
func (o *OAuthBearerClient) IsComplete() bool {
	return o.complete
}

// Dispose has nothing to release
func (o *OAuthBearerClient) Dispose() error {
	return nil
}
