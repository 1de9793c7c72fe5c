package auth

import (
	"alkemio.org/authz/internal/authorization"
)

// Principal is an authenticated caller together with the credentials it
// presented.
type Principal struct {
	Subject     string
	Credentials []authorization.CredentialDescriptor
}

// NewPrincipal copies creds so the principal stays immutable.
func NewPrincipal(subject string, creds []authorization.CredentialDescriptor) Principal {
	out := make([]authorization.CredentialDescriptor, len(creds))
	copy(out, creds)
	return Principal{Subject: subject, Credentials: out}
}
