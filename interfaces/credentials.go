package interfaces

// Credential is one identity/secret pair held by a credential source
type Credential struct {
	Identity string
	Secret   string
}

// CredentialSource supplies identity material to a session.
// Implementations are read-only; the authenticator never mutates them.
type CredentialSource interface {
	// Principals returns the selected identity names, in preference order
	Principals() []string

	// Credentials returns the identity/secret pairs, in preference order
	Credentials() []Credential
}
