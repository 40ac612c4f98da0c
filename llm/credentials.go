package llm

import (
	"os"
)

// Credential source labels, in resolution order. The label of the winning
// source flows into Usage records so spend can be attributed per source.
const (
	CredentialSourceRequest     = "request"
	CredentialSourceServer      = "server"
	CredentialSourceEnvironment = "environment"
)

// GatewayKeyEnvVar is the environment fallback for the gateway API key.
const GatewayKeyEnvVar = "RELAY_GATEWAY_API_KEY"

// Credential is a resolved gateway API key plus the label of the source
// that supplied it.
type Credential struct {
	Key    string
	Source string
}

// CredentialResolver resolves the API key for an upstream call through an
// ordered fallback chain: per-request key, then the server-configured key,
// then the environment.
type CredentialResolver struct {
	serverKey string
}

// NewCredentialResolver creates a resolver with the server-configured key.
// An empty key is allowed; resolution then depends on the request or the
// environment.
func NewCredentialResolver(serverKey string) *CredentialResolver {
	return &CredentialResolver{serverKey: serverKey}
}

// Resolve returns the first available credential. requestKey comes from the
// inbound request and wins when present. Resolution failure is a credential
// error, surfaced to the caller before any upstream work starts.
func (r *CredentialResolver) Resolve(requestKey string) (Credential, error) {
	if requestKey != "" {
		return Credential{Key: requestKey, Source: CredentialSourceRequest}, nil
	}
	if r.serverKey != "" {
		return Credential{Key: r.serverKey, Source: CredentialSourceServer}, nil
	}
	if key := os.Getenv(GatewayKeyEnvVar); key != "" {
		return Credential{Key: key, Source: CredentialSourceEnvironment}, nil
	}
	return Credential{}, NewAuthError("no gateway API key configured", nil)
}
