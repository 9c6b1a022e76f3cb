// Package oauth2 implements the OAuth 2.0 authorization-code flow with
// refresh tokens and bearer-token request signing.
//
// Callers direct the user to the URI from BuildAuthenticationURI, receive
// an authorization code on their redirect URI and exchange it with
// RequestAuthorization. The refresh token can be read back for persistence
// and restored into a fresh Authorizer with SetRefreshToken, after which
// RefreshAuthorization mints access tokens without user interaction.
package oauth2

import (
	"context"
	"encoding/json"
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
	defaultAuthEndpoint  = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenEndpoint = "https://accounts.google.com/o/oauth2/token"
)

// OOBRedirectURI is the out-of-band redirect URI for clients which cannot
// listen on a loopback port; the authorization code is displayed to the
// user for manual copying.
const OOBRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

// Authorizer holds one access/refresh token pair covering all registered
// domains. Safe for concurrent use.
type Authorizer struct {
	clientID     string
	clientSecret *auth.Secret
	redirectURI  string
	domains      map[*auth.Domain]bool

	client  *http.Client
	limiter *ratelimit.Limiter

	authEndpoint  string
	tokenEndpoint string

	// mu guards locale, accessToken and refreshToken. An access token is
	// only ever held alongside the refresh token it was minted with, so
	// accessToken non-empty implies refreshToken non-empty. The converse
	// does not hold: a restored refresh token sits alone until the first
	// RefreshAuthorization.
	mu           sync.Mutex
	locale       string
	accessToken  *auth.Secret
	refreshToken *auth.Secret
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithHTTPClient sets the HTTP client used for token grants.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authorizer) { a.client = c }
}

// WithEndpoints overrides the authorization and token endpoints. Intended
// for tests and for non-default account servers.
func WithEndpoints(authURL, tokenURL string) Option {
	return func(a *Authorizer) {
		a.authEndpoint = authURL
		a.tokenEndpoint = tokenURL
	}
}

// New creates an Authorizer for the given client credentials, redirect URI
// and authorization domains. The client ID and secret are the ones
// registered for the application; redirectURI is where the authorization
// code will be delivered, or OOBRedirectURI for manual copying.
func New(clientID, clientSecret, redirectURI string, domains []*auth.Domain, opts ...Option) *Authorizer {
	a := &Authorizer{
		clientID:      clientID,
		clientSecret:  auth.NewSecret(clientSecret),
		redirectURI:   redirectURI,
		domains:       make(map[*auth.Domain]bool, len(domains)),
		client:        &http.Client{Timeout: 30 * time.Second},
		limiter:       ratelimit.New(),
		authEndpoint:  defaultAuthEndpoint,
		tokenEndpoint: defaultTokenEndpoint,
	}
	for _, d := range domains {
		a.domains[d] = true
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

// RedirectURI returns the authorization redirect URI.
func (a *Authorizer) RedirectURI() string {
	return a.redirectURI
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

// RefreshToken returns the current refresh token, or "" if none is held.
// Callers own persistence: store it securely and restore it with
// SetRefreshToken to skip the browser flow in later sessions.
func (a *Authorizer) RefreshToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshToken.Reveal()
}

// SetRefreshToken replaces the held refresh token. Passing "" clears both
// the refresh token and any access token (logout). Passing a new token
// also drops any cached access token, since an access token is only valid
// in combination with the refresh token it was minted alongside.
func (a *Authorizer) SetRefreshToken(refreshToken string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.accessToken.Zero()
	a.accessToken = nil
	a.refreshToken.Zero()
	if refreshToken == "" {
		a.refreshToken = nil
		return
	}
	a.refreshToken = auth.NewSecret(refreshToken)
}

// BuildAuthenticationURI returns the URI of the consent page to open in
// the user's browser. loginHint optionally pre-fills the account chooser
// with an e-mail address. includeGrantedScopes enables incremental
// authorization, letting the new grant subsume scopes the user already
// granted this application.
func (a *Authorizer) BuildAuthenticationURI(loginHint string, includeGrantedScopes bool) string {
	a.mu.Lock()
	locale := a.locale
	a.mu.Unlock()

	scopes := make([]string, 0, len(a.domains))
	for d := range a.domains {
		scopes = append(scopes, d.Scope())
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", a.clientID)
	q.Set("redirect_uri", a.redirectURI)
	q.Set("scope", strings.Join(scopes, " "))
	if loginHint != "" {
		q.Set("login_hint", loginHint)
	}
	if locale != "" {
		q.Set("hl", locale)
	}
	q.Set("include_granted_scopes", fmt.Sprintf("%t", includeGrantedScopes))
	return a.authEndpoint + "?" + q.Encode()
}

// RequestAuthorization exchanges the authorization code from the consent
// page for an access/refresh token pair, which replaces any previously
// held one. The reply must carry a refresh token on the first
// authorization; on re-authorization its absence is fine and the held one
// is kept.
func (a *Authorizer) RequestAuthorization(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty authorization code", auth.ErrDenied)
	}

	a.mu.Lock()
	form := url.Values{}
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret.Reveal())
	form.Set("code", code)
	form.Set("redirect_uri", a.redirectURI)
	form.Set("grant_type", "authorization_code")
	a.mu.Unlock()

	return a.grant(ctx, form)
}

// RefreshAuthorization mints a fresh access token from the held refresh
// token. If none is held, it returns (false, nil) without contacting the
// network; that is the "nothing to refresh" outcome, not an error.
func (a *Authorizer) RefreshAuthorization(ctx context.Context) (bool, error) {
	a.mu.Lock()
	if a.refreshToken.Empty() {
		a.mu.Unlock()
		return false, nil
	}
	form := url.Values{}
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret.Reveal())
	form.Set("refresh_token", a.refreshToken.Reveal())
	form.Set("grant_type", "refresh_token")
	a.mu.Unlock()

	if err := a.grant(ctx, form); err != nil {
		return false, err
	}
	return true, nil
}

// grant POSTs one token-grant request and commits the parsed response.
func (a *Authorizer) grant(ctx context.Context, form url.Values) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("oauth2: building grant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logger.Debug("oauth2: requesting %s grant", form.Get("grant_type"))
	resp, err := a.client.Do(req)
	if err != nil {
		return auth.WrapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return auth.WrapTransportError(err)
	}
	// The body carries the token pair on success; scrub it once parsed.
	defer auth.Wipe(body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		a.limiter.RecordRetryAfter(ratelimit.RetryAfterSeconds(resp.Header))
	}
	if resp.StatusCode != http.StatusOK {
		return parseGrantError(resp.StatusCode, body)
	}
	return a.commitGrantResponse(body)
}

// commitGrantResponse parses a successful grant reply and updates the
// token pair under the lock. An access token is always required; a
// refresh token only on the first authorization.
func (a *Authorizer) commitGrantResponse(body []byte) error {
	var reply struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err := json.Unmarshal(body, &reply)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil || reply.AccessToken == "" || (reply.RefreshToken == "" && a.refreshToken.Empty()) {
		// A malformed reply invalidates the access token, but a held
		// refresh token stays usable for another attempt.
		a.accessToken.Zero()
		a.accessToken = nil
		return fmt.Errorf("%w: malformed token grant response", auth.ErrProtocol)
	}

	a.accessToken.Zero()
	a.accessToken = auth.NewSecret(reply.AccessToken)
	if reply.RefreshToken != "" {
		a.refreshToken.Zero()
		a.refreshToken = auth.NewSecret(reply.RefreshToken)
	}
	return nil
}

// parseGrantError maps a non-200 grant reply to an error kind:
// invalid_grant means the user or server denied access, anything else is
// treated as a protocol error.
func parseGrantError(status int, body []byte) error {
	var reply struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err != nil || reply.Error == "" {
		return fmt.Errorf("%w: HTTP %d with undecodable error body", auth.ErrProtocol, status)
	}
	if reply.Error == "invalid_grant" {
		return fmt.Errorf("%w: invalid_grant", auth.ErrDenied)
	}
	return fmt.Errorf("%w: HTTP %d with error code %q", auth.ErrProtocol, status, reply.Error)
}

// ProcessRequest attaches the access token as a Bearer Authorization
// header if domain is covered. Requests to non-https targets are left
// unsigned.
func (a *Authorizer) ProcessRequest(domain *auth.Domain, req *http.Request) {
	if domain == nil || req == nil || !a.domains[domain] {
		return
	}

	a.mu.Lock()
	token := a.accessToken.Reveal()
	a.mu.Unlock()

	if token == "" {
		return
	}
	if req.URL == nil || req.URL.Scheme != "https" {
		logger.Warn("oauth2: not signing request to %q: connection is not secure", req.URL)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// IsAuthorizedForDomain reports whether an access token covering domain
// is held. A bare refresh token does not count as authorized until
// RefreshAuthorization has minted an access token from it.
func (a *Authorizer) IsAuthorizedForDomain(domain *auth.Domain) bool {
	if domain == nil || !a.domains[domain] {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.accessToken.Empty()
}
