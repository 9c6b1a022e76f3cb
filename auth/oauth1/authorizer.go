// Package oauth1 implements three-legged OAuth 1.0a (RFC 5849) with
// HMAC-SHA1 request signing.
//
// The dance has two entry points with no authorizer state held between
// them: BuildAuthenticationURI obtains temporary credentials and a URI for
// the user to open in a browser, and RequestAuthorization exchanges the
// verifier shown there for permanent token credentials. The caller carries
// the temporary token and secret between the two calls, so abandoning an
// in-progress authentication leaves nothing dangling.
//
// The protocol is deprecated upstream. New code should use package oauth2.
package oauth1

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/halcyon-labs/gdauth/auth"
	"github.com/halcyon-labs/gdauth/internal/logger"
	"github.com/halcyon-labs/gdauth/internal/ratelimit"
)

const (
	defaultRequestTokenEndpoint = "https://www.google.com/accounts/OAuthGetRequestToken"
	defaultAccessTokenEndpoint  = "https://www.google.com/accounts/OAuthGetAccessToken"
	defaultAuthorizeEndpoint    = "https://www.google.com/accounts/OAuthAuthorizeToken"
)

// Authorizer signs requests with OAuth 1.0a token credentials shared
// across all registered domains. Safe for concurrent use.
type Authorizer struct {
	applicationName string
	domains         map[*auth.Domain]bool

	client  *http.Client
	limiter *ratelimit.Limiter
	signer  *signer

	requestTokenEndpoint string
	accessTokenEndpoint  string
	authorizeEndpoint    string

	// mu guards locale, token and tokenSecret. The token and secret are
	// either both present or both absent.
	mu          sync.Mutex
	locale      string
	token       string
	tokenSecret *auth.Secret
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithHTTPClient sets the HTTP client used for the token dance.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authorizer) { a.client = c }
}

// WithEndpoints overrides the three protocol endpoints. Intended for tests.
func WithEndpoints(requestToken, accessToken, authorize string) Option {
	return func(a *Authorizer) {
		a.requestTokenEndpoint = requestToken
		a.accessTokenEndpoint = accessToken
		a.authorizeEndpoint = authorize
	}
}

// New creates an Authorizer whose token credentials, once obtained, cover
// the given authorization domains. applicationName is displayed to the
// user on the authorization page, since the anonymous consumer key carries
// no registered name.
func New(applicationName string, domains []*auth.Domain, opts ...Option) *Authorizer {
	a := &Authorizer{
		applicationName:      applicationName,
		domains:              make(map[*auth.Domain]bool, len(domains)),
		client:               &http.Client{Timeout: 30 * time.Second},
		limiter:              ratelimit.New(),
		signer:               newSigner(),
		requestTokenEndpoint: defaultRequestTokenEndpoint,
		accessTokenEndpoint:  defaultAccessTokenEndpoint,
		authorizeEndpoint:    defaultAuthorizeEndpoint,
	}
	for _, d := range domains {
		a.domains[d] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ApplicationName returns the name shown on authorization pages.
func (a *Authorizer) ApplicationName() string {
	return a.applicationName
}

// Locale returns the locale sent with authentication URIs, or "".
func (a *Authorizer) Locale() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locale
}

// SetLocale sets the locale appended to authentication URIs as the hl
// query parameter, in Unix locale format (e.g. "en_GB"). Pass "" to use
// the server default.
func (a *Authorizer) SetLocale(locale string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.locale = locale
}

// BuildAuthenticationURI requests temporary credentials covering the
// scopes of all registered domains and returns them together with the URI
// of the authorization page the user must visit. The caller keeps the
// returned token and secret and passes them to RequestAuthorization along
// with the verifier from that page; zero the secret once done with it.
func (a *Authorizer) BuildAuthenticationURI(ctx context.Context) (token string, tokenSecret *auth.Secret, authURI string, err error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", nil, "", err
	}

	a.mu.Lock()
	locale := a.locale
	a.mu.Unlock()

	scopes := make([]string, 0, len(a.domains))
	for d := range a.domains {
		scopes = append(scopes, d.Scope())
	}

	form := url.Values{}
	form.Set("scope", strings.Join(scopes, " "))
	form.Set("xoauth_displayname", a.applicationName)
	form.Set("oauth_callback", "oob")

	fields, err := a.post(ctx, a.requestTokenEndpoint, form, "", "")
	if err != nil {
		return "", nil, "", err
	}

	rt := fields.Get("oauth_token")
	rts := fields.Get("oauth_token_secret")
	if rt == "" || rts == "" || fields.Get("oauth_callback_confirmed") != "true" {
		return "", nil, "", fmt.Errorf("%w: temporary credentials response missing token, secret or callback confirmation", auth.ErrProtocol)
	}

	uri := a.authorizeEndpoint + "?oauth_token=" + url.QueryEscape(rt)
	if locale != "" {
		uri += "&hl=" + url.QueryEscape(locale)
	}
	return rt, auth.NewSecret(rts), uri, nil
}

// RequestAuthorization exchanges the verifier the user obtained from the
// authorization page for permanent token credentials, which replace any
// previously held ones. token and tokenSecret are the values returned by
// BuildAuthenticationURI. A non-2xx response means the user or server
// denied the request and surfaces as auth.ErrDenied.
func (a *Authorizer) RequestAuthorization(ctx context.Context, token string, tokenSecret *auth.Secret, verifier string) error {
	if token == "" || tokenSecret.Empty() || verifier == "" {
		return fmt.Errorf("%w: missing request token, token secret or verifier", auth.ErrDenied)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("oauth_verifier", verifier)

	fields, err := a.post(ctx, a.accessTokenEndpoint, form, token, tokenSecret.Reveal())
	if err != nil {
		return err
	}

	at := fields.Get("oauth_token")
	ats := fields.Get("oauth_token_secret")
	if at == "" || ats == "" {
		return fmt.Errorf("%w: token credentials response missing token or secret", auth.ErrProtocol)
	}

	a.mu.Lock()
	a.token = at
	a.tokenSecret.Zero()
	a.tokenSecret = auth.NewSecret(ats)
	a.mu.Unlock()

	logger.Debug("oauth1: stored token credentials for %d domain(s)", len(a.domains))
	return nil
}

// post signs and sends one form POST of the token dance and decodes the
// form-encoded response.
func (a *Authorizer) post(ctx context.Context, endpoint string, form url.Values, token, tokenSecret string) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("oauth1: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", a.signer.authorizationHeader(http.MethodPost, req.URL, token, tokenSecret, form))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, auth.WrapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, auth.WrapTransportError(err)
	}
	// The body carries token credentials on success; scrub it once parsed.
	defer auth.Wipe(body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		a.limiter.RecordRetryAfter(ratelimit.RetryAfterSeconds(resp.Header))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if endpoint == a.accessTokenEndpoint {
			return nil, fmt.Errorf("%w: HTTP %d from token endpoint", auth.ErrDenied, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: HTTP %d from temporary credentials endpoint", auth.ErrProtocol, resp.StatusCode)
	}

	fields, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable token response: %v", auth.ErrProtocol, err)
	}
	return fields, nil
}

// ProcessRequest signs req with the held token credentials if they cover
// domain. Requests to non-https targets are left unsigned.
func (a *Authorizer) ProcessRequest(domain *auth.Domain, req *http.Request) {
	if domain == nil || req == nil || !a.domains[domain] {
		return
	}

	a.mu.Lock()
	token := a.token
	secret := a.tokenSecret.Reveal()
	a.mu.Unlock()

	if token == "" {
		return
	}
	if req.URL == nil || req.URL.Scheme != "https" {
		logger.Warn("oauth1: not signing request to %q: connection is not secure", req.URL)
		return
	}
	req.Header.Set("Authorization", a.signer.authorizationHeader(req.Method, req.URL, token, secret, nil))
}

// IsAuthorizedForDomain reports whether token credentials covering domain
// are held.
func (a *Authorizer) IsAuthorizedForDomain(domain *auth.Domain) bool {
	if domain == nil || !a.domains[domain] {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token != ""
}

// RefreshAuthorization is a no-op: OAuth 1.0a token credentials are
// long-lived and the protocol has no refresh operation. It always returns
// (false, nil).
func (a *Authorizer) RefreshAuthorization(ctx context.Context) (bool, error) {
	return false, nil
}
