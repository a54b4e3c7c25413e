// Package identity resolves a social-identity reference, a human-readable
// handle or a DID, to the DID's declared service endpoints.
//
// Handles resolve through an ordered chain of strategies with fixed
// precedence: a DNS TXT lookup first, then an HTTPS well-known fetch only
// if DNS yields nothing. DIDs dereference to an identity document via the
// plc directory (did:plc) or a URL derived from the identifier itself
// (did:web). Every sub-step is a single attempt; the resolver performs no
// retries.
package identity

import "github.com/agentstation/labelview/pkg/errors"

// ServiceKind names a service endpoint class declared in a DID document.
type ServiceKind string

const (
	// ServicePDS is the personal data server endpoint.
	ServicePDS ServiceKind = "atproto_pds"

	// ServiceLabeler is the moderation label issuing endpoint.
	ServiceLabeler ServiceKind = "atproto_labeler"
)

// Identity is the outcome of one resolution pass. It is immutable and
// lives for one run.
type Identity struct {
	// Input is the identifier as given by the caller.
	Input string `json:"input"`

	// DID is the resolved decentralized identifier.
	DID string `json:"did"`

	// Handle is the primary handle declared in the identity document's
	// alsoKnownAs, if any.
	Handle string `json:"handle,omitempty"`

	// Services maps endpoint kinds to their declared URLs.
	Services map[ServiceKind]string `json:"services"`
}

// Endpoint returns the declared URL for an endpoint kind.
func (id *Identity) Endpoint(kind ServiceKind) (string, bool) {
	url, ok := id.Services[kind]
	return url, ok
}

// RequireEndpoint returns the declared URL for an endpoint kind, or a
// ResolutionError wrapping ErrServiceNotDeclared when the identity
// document does not declare it.
func (id *Identity) RequireEndpoint(kind ServiceKind) (string, error) {
	url, ok := id.Services[kind]
	if !ok || url == "" {
		return "", errors.NewResolutionError(id.Input, "service",
			"identity document declares no "+string(kind)+" endpoint",
			errors.ErrServiceNotDeclared)
	}
	return url, nil
}
