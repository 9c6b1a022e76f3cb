package oauth2

import (
	"context"
	"fmt"

	xoauth2 "golang.org/x/oauth2"

	"github.com/halcyon-labs/gdauth/auth"
)

// tokenSourceAdapter adapts an Authorizer to oauth2.TokenSource, so the
// credentials it manages can drive clients built on golang.org/x/oauth2.
type tokenSourceAdapter struct {
	authorizer *Authorizer
	ctx        context.Context
}

// TokenSource returns an oauth2.TokenSource backed by a. Each Token call
// refreshes the access token through a, so the source never hands out a
// token older than the last refresh; callers wanting caching can wrap it
// in oauth2.ReuseTokenSource.
func TokenSource(ctx context.Context, a *Authorizer) xoauth2.TokenSource {
	return &tokenSourceAdapter{
		authorizer: a,
		ctx:        ctx,
	}
}

// Token implements oauth2.TokenSource.
func (t *tokenSourceAdapter) Token() (*xoauth2.Token, error) {
	refreshed, err := t.authorizer.RefreshAuthorization(t.ctx)
	if err != nil {
		return nil, err
	}
	if !refreshed {
		return nil, fmt.Errorf("%w: no refresh token held", auth.ErrDenied)
	}

	t.authorizer.mu.Lock()
	accessToken := t.authorizer.accessToken.Reveal()
	t.authorizer.mu.Unlock()

	return &xoauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}, nil
}
