// Package clientlogin implements username/password authentication against
// the legacy ClientLogin token endpoint.
//
// The protocol has no multi-domain tokens, so one token is requested per
// registered authorization domain and Authenticate only succeeds if every
// domain's request succeeds. Tokens are long-lived; there is no refresh.
//
// The protocol is deprecated upstream. New code should use package oauth2.
package clientlogin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/halcyon-labs/gdauth/auth"
	"github.com/halcyon-labs/gdauth/internal/logger"
	"github.com/halcyon-labs/gdauth/internal/ratelimit"
)

const (
	defaultEndpoint = "https://www.google.com/accounts/ClientLogin"

	// Base URI the CaptchaUrl response field is resolved against.
	captchaBase = "http://www.google.com/accounts/"

	// Domain suffix appended to bare usernames.
	emailDomain = "gmail.com"
)

// CaptchaHandler answers a CAPTCHA challenge during Authenticate. It
// receives the URI of the challenge image, blocks until the user has
// answered, and returns the answer. Returning "" abandons the attempt,
// which surfaces as auth.ErrCaptchaRequired.
//
// The handler is invoked without any authorizer lock held, so it may call
// back into the authorizer freely.
type CaptchaHandler func(imageURI string) (answer string)

// Authorizer authenticates with a username and password, holding one token
// per registered domain. Safe for concurrent use.
type Authorizer struct {
	clientID string
	domains  []*auth.Domain

	client  *http.Client
	limiter *ratelimit.Limiter

	endpoint       string
	captchaHandler CaptchaHandler

	// mu guards username, password and tokens. Network calls happen
	// outside the lock; it is only taken to snapshot inputs and to
	// commit results.
	mu       sync.Mutex
	username string
	password *auth.Secret
	tokens   map[*auth.Domain]*auth.Secret
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authorizer) { a.client = c }
}

// WithCaptchaHandler sets the handler invoked when the server demands a
// CAPTCHA answer. Without one, a challenge fails the authentication with
// auth.ErrCaptchaRequired.
func WithCaptchaHandler(h CaptchaHandler) Option {
	return func(a *Authorizer) { a.captchaHandler = h }
}

// WithEndpoint overrides the token endpoint. Intended for tests.
func WithEndpoint(url string) Option {
	return func(a *Authorizer) { a.endpoint = url }
}

// New creates an Authorizer for the given client ID and authorization
// domains. The client ID identifies the application to the server; the
// domain set is fixed for the authorizer's lifetime.
func New(clientID string, domains []*auth.Domain, opts ...Option) *Authorizer {
	a := &Authorizer{
		clientID: clientID,
		domains:  append([]*auth.Domain(nil), domains...),
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  ratelimit.New(),
		endpoint: defaultEndpoint,
		tokens:   make(map[*auth.Domain]*auth.Secret),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ClientID returns the application's client ID.
func (a *Authorizer) ClientID() string {
	return a.clientID
}

// Username returns the username from the last successful Authenticate, or
// "" if not authenticated.
func (a *Authorizer) Username() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.username
}

// ProcessRequest attaches the token covering domain as a
// "GoogleLogin auth=..." Authorization header. Requests to non-https
// targets are left unsigned.
func (a *Authorizer) ProcessRequest(domain *auth.Domain, req *http.Request) {
	if domain == nil || req == nil {
		return
	}

	a.mu.Lock()
	token := a.tokens[domain]
	value := token.Reveal()
	a.mu.Unlock()

	if value == "" {
		return
	}
	if req.URL == nil || req.URL.Scheme != "https" {
		logger.Warn("clientlogin: not signing request to %q: connection is not secure", req.URL)
		return
	}
	req.Header.Set("Authorization", "GoogleLogin auth="+value)
}

// IsAuthorizedForDomain reports whether a token for domain is held.
func (a *Authorizer) IsAuthorizedForDomain(domain *auth.Domain) bool {
	if domain == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.tokens[domain].Empty()
}

// RefreshAuthorization is a no-op: ClientLogin tokens are long-lived and
// the protocol has no refresh operation. It always returns (false, nil).
func (a *Authorizer) RefreshAuthorization(ctx context.Context) (bool, error) {
	return false, nil
}
