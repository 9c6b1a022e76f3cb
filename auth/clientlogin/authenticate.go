package clientlogin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/halcyon-labs/gdauth/auth"
	"github.com/halcyon-labs/gdauth/internal/logger"
	"github.com/halcyon-labs/gdauth/internal/ratelimit"
)

// Authenticate exchanges username and password for one token per
// registered domain. A bare username is first qualified with the default
// e-mail domain. The domains are authenticated in registration order; if
// any of them fails, the first error is returned and the authorizer ends
// up holding no credentials at all, so either every registered domain is
// authorized afterwards or none is.
//
// If the server demands a CAPTCHA, the configured CaptchaHandler is called
// and the request retried with its answer; a second challenge triggers the
// handler again.
func (a *Authorizer) Authenticate(ctx context.Context, username, password string) error {
	email := username
	if !strings.Contains(email, "@") {
		email = email + "@" + emailDomain
	}

	secret := auth.NewSecret(password)

	tokens := make(map[*auth.Domain]*auth.Secret, len(a.domains))
	var firstErr error
	for _, d := range a.domains {
		token, err := a.requestToken(ctx, email, secret, d, "", "")
		if err != nil {
			firstErr = err
			break
		}
		tokens[d] = token
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.clearLocked()
	if firstErr != nil {
		for _, t := range tokens {
			t.Zero()
		}
		secret.Zero()
		return firstErr
	}

	a.username = email
	a.password = secret
	a.tokens = tokens
	logger.Debug("clientlogin: authenticated %d domain(s) for %s", len(tokens), email)
	return nil
}

// clearLocked zeroes and drops all credential state. Caller holds mu.
func (a *Authorizer) clearLocked() {
	a.username = ""
	a.password.Zero()
	a.password = nil
	for _, t := range a.tokens {
		t.Zero()
	}
	a.tokens = make(map[*auth.Domain]*auth.Secret)
}

// requestToken performs one token request for a single domain, following
// CAPTCHA challenges recursively. captchaToken and captchaAnswer are empty
// on the initial call.
func (a *Authorizer) requestToken(ctx context.Context, email string, password *auth.Secret, domain *auth.Domain, captchaToken, captchaAnswer string) (*auth.Secret, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("accountType", "HOSTED_OR_GOOGLE")
	form.Set("Email", email)
	form.Set("Passwd", password.Reveal())
	form.Set("service", domain.ServiceName())
	form.Set("source", a.clientID)
	if captchaToken != "" {
		form.Set("logintoken", captchaToken)
		form.Set("loginanswer", captchaAnswer)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("clientlogin: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logger.Debug("clientlogin: requesting token for service %q", domain.ServiceName())
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, auth.WrapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, auth.WrapTransportError(err)
	}
	// The body carries the token on success; scrub it once parsed.
	defer auth.Wipe(body)
	fields := parseResponse(string(body))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		a.limiter.RecordRetryAfter(ratelimit.RetryAfterSeconds(resp.Header))
	}

	if resp.StatusCode == http.StatusOK {
		token := fields["Auth"]
		if token == "" {
			return nil, fmt.Errorf("%w: no Auth token in ClientLogin response", auth.ErrProtocol)
		}
		return auth.NewSecret(token), nil
	}

	if fields["Error"] == errCaptchaRequired {
		return a.answerCaptcha(ctx, email, password, domain, fields)
	}
	return nil, mapErrorResponse(resp.StatusCode, fields)
}

// answerCaptcha drives one round of the CAPTCHA sub-protocol and resubmits
// the token request with the user's answer.
func (a *Authorizer) answerCaptcha(ctx context.Context, email string, password *auth.Secret, domain *auth.Domain, fields map[string]string) (*auth.Secret, error) {
	captchaURL := fields["CaptchaUrl"]
	captchaToken := fields["CaptchaToken"]
	if captchaURL == "" || captchaToken == "" {
		return nil, fmt.Errorf("%w: CAPTCHA challenge missing URL or token", auth.ErrProtocol)
	}

	handler := a.captchaHandler
	if handler == nil {
		return nil, auth.ErrCaptchaRequired
	}

	// CaptchaUrl is relative to the accounts base URI.
	answer := handler(captchaBase + captchaURL)
	if answer == "" {
		return nil, auth.ErrCaptchaRequired
	}
	return a.requestToken(ctx, email, password, domain, captchaToken, answer)
}
