package auth

// Domain identifies a single authorization scope within an online service:
// a (service name, scope URI) pair the caller wants access to.
//
// Domains are immutable and compared by identity, not by content: request
// -issuing code and authorizers must share the same *Domain values, which
// are used directly as map keys. Constructing a second Domain with equal
// fields yields a distinct domain.
type Domain struct {
	serviceName string
	scope       string
}

// NewDomain creates a Domain for the given service name and scope URI.
func NewDomain(serviceName, scope string) *Domain {
	return &Domain{
		serviceName: serviceName,
		scope:       scope,
	}
}

// ServiceName returns the name of the service containing the domain.
func (d *Domain) ServiceName() string {
	return d.serviceName
}

// Scope returns the URI detailing the scope of the domain.
func (d *Domain) Scope() string {
	return d.scope
}
