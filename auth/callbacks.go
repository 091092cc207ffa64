package auth

import (
	"io"

	saslerrors "github.com/maxpert/saslauth/errors"
	"github.com/maxpert/saslauth/interfaces"
)

const (
	passwordUnsupportedText = "could not login: the client is being asked for a password, but the client code" +
		" does not currently support obtaining a password from the user"

	kerberosPasswordHint = " Make sure the login configuration is passed to the client and that it is" +
		" configured to use a ticket cache. Make sure you are using the FQDN of the broker you are trying" +
		" to connect to."
)

// Callbacks is the credential capability a mechanism client consults.
// Each method answers one kind of credential query.
type Callbacks interface {
	// Name returns the authentication identity, or defaultName when none is held
	Name(defaultName string) (string, error)

	// Password returns the secret for the authentication identity
	Password() (string, error)

	// Realm returns the realm to authenticate in
	Realm(defaultRealm string) (string, error)

	// Authorize reports whether authenticationID may act as authorizationID
	// and returns the authorized id
	Authorize(authenticationID, authorizationID string) (string, bool)

	// Close releases credential resources. Safe to call more than once.
	Close() error
}

// ClientCallbacks answers credential queries from a CredentialSource
type ClientCallbacks struct {
	isKerberos  bool
	mechanism   string
	credentials interfaces.CredentialSource
	closed      bool
}

// NewClientCallbacks creates callbacks for the given mechanism. Ticket-based
// logins never read identity or secret from the credential set.
func NewClientCallbacks(mechanism string, credentials interfaces.CredentialSource) *ClientCallbacks {
	return &ClientCallbacks{
		isKerberos:  mechanism == MechanismGSSAPI,
		mechanism:   mechanism,
		credentials: credentials,
	}
}

func (c *ClientCallbacks) first() (interfaces.Credential, bool) {
	if c.isKerberos || c.credentials == nil {
		return interfaces.Credential{}, false
	}
	creds := c.credentials.Credentials()
	if len(creds) == 0 {
		return interfaces.Credential{}, false
	}
	return creds[0], true
}

// Name returns the first configured identity
func (c *ClientCallbacks) Name(defaultName string) (string, error) {
	if cred, ok := c.first(); ok && cred.Identity != "" {
		return cred.Identity, nil
	}
	return defaultName, nil
}

// Password returns the first configured secret
func (c *ClientCallbacks) Password() (string, error) {
	if cred, ok := c.first(); ok && cred.Secret != "" {
		return cred.Secret, nil
	}

	message := passwordUnsupportedText
	if c.isKerberos {
		message += "." + kerberosPasswordHint
	}
	return "", saslerrors.NewConfigurationError(message, c.mechanism, nil)
}

// Realm returns the default realm unchanged
func (c *ClientCallbacks) Realm(defaultRealm string) (string, error) {
	return defaultRealm, nil
}

// Authorize permits only acting as oneself
func (c *ClientCallbacks) Authorize(authenticationID, authorizationID string) (string, bool) {
	if authenticationID != authorizationID {
		return "", false
	}
	return authorizationID, true
}

// Close closes the credential source if it holds resources
func (c *ClientCallbacks) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if closer, ok := c.credentials.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
