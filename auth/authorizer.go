package auth

import (
	"context"
	"net/http"
)

// Authorizer obtains, stores and refreshes access credentials for a set of
// authorization domains, and attaches them to outgoing requests.
//
// Implementations must be safe for concurrent use on every method,
// including while an authentication call is in flight.
type Authorizer interface {
	// ProcessRequest attaches the credential covering domain to req by
	// setting its Authorization header. If domain is nil, the domain is
	// unknown to the authorizer, or no credential is held, req is left
	// untouched and proceeds unauthenticated. Credentials are never
	// attached to a request whose target is not https; such requests are
	// skipped with a warning rather than failed.
	ProcessRequest(domain *Domain, req *http.Request)

	// IsAuthorizedForDomain reports whether a credential covering domain
	// is currently held. It is a non-blocking read of cached state and
	// may be stale relative to server-side revocation.
	IsAuthorizedForDomain(domain *Domain) bool

	// RefreshAuthorization attempts to obtain fresh credentials using
	// only state the authorizer already holds. It returns (false, nil)
	// when no refresh is possible or applicable, which is a non-error
	// outcome, and (false, err) only when a refresh was attempted and
	// failed. No partial credential state is committed after ctx is
	// canceled.
	RefreshAuthorization(ctx context.Context) (bool, error)
}

// IsAuthorizedForDomain reports whether a holds a credential covering
// domain. Unlike the method, it tolerates a nil Authorizer, which call
// sites use to treat "no authorizer configured" uniformly with "not
// authorized".
func IsAuthorizedForDomain(a Authorizer, domain *Domain) bool {
	if a == nil || domain == nil {
		return false
	}
	return a.IsAuthorizedForDomain(domain)
}

// ProcessRequest attaches a's credential for domain to req, tolerating a
// nil Authorizer (the request is left untouched).
func ProcessRequest(a Authorizer, domain *Domain, req *http.Request) {
	if a == nil {
		return
	}
	a.ProcessRequest(domain, req)
}
