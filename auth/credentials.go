package auth

import (
	"github.com/maxpert/saslauth/interfaces"
)

// UserType is the principal type of every authenticated client
const UserType = "User"

// Principal is the identity a session exposes once authenticated
type Principal struct {
	Type string
	Name string
}

// NewPrincipal creates a user principal
func NewPrincipal(name string) Principal {
	return Principal{Type: UserType, Name: name}
}

func (p Principal) String() string {
	return p.Type + ":" + p.Name
}

// StaticCredentials is an in-memory CredentialSource
type StaticCredentials struct {
	principals  []string
	credentials []interfaces.Credential
}

// NewStaticCredentials creates a credential source from fixed values
func NewStaticCredentials(principals []string, credentials ...interfaces.Credential) *StaticCredentials {
	return &StaticCredentials{
		principals:  append([]string(nil), principals...),
		credentials: append([]interfaces.Credential(nil), credentials...),
	}
}

// UserCredentials creates a source holding one identity that is also the principal
func UserCredentials(username, password string) *StaticCredentials {
	return NewStaticCredentials([]string{username}, interfaces.Credential{Identity: username, Secret: password})
}

// Principals returns the selected identity names
func (s *StaticCredentials) Principals() []string {
	return s.principals
}

// Credentials returns the identity/secret pairs
func (s *StaticCredentials) Credentials() []interfaces.Credential {
	return s.credentials
}
