package auth

import "context"

// RefreshResult carries the outcome of an asynchronous refresh.
type RefreshResult struct {
	// Refreshed is true if new credentials were obtained.
	Refreshed bool
	Err       error
}

// AsyncAuthorizer is implemented by authorizers that provide a native
// asynchronous refresh path. RefreshAsync prefers it when present.
type AsyncAuthorizer interface {
	Authorizer

	// RefreshAuthorizationAsync behaves like RefreshAuthorization but
	// returns immediately; the result is delivered exactly once on the
	// returned channel, which is then closed.
	RefreshAuthorizationAsync(ctx context.Context) <-chan RefreshResult
}

// RefreshAsync refreshes a's credentials without blocking the caller. If a
// implements AsyncAuthorizer its native path is used; otherwise the
// synchronous RefreshAuthorization runs on a new goroutine. Either way the
// result arrives exactly once on the returned channel, with the same
// semantics as RefreshAuthorization, including cancellation: a canceled ctx
// surfaces as a context error in RefreshResult.Err rather than being
// swallowed.
func RefreshAsync(ctx context.Context, a Authorizer) <-chan RefreshResult {
	if aa, ok := a.(AsyncAuthorizer); ok {
		return aa.RefreshAuthorizationAsync(ctx)
	}
	ch := make(chan RefreshResult, 1)
	if a == nil {
		ch <- RefreshResult{}
		close(ch)
		return ch
	}
	go func() {
		refreshed, err := a.RefreshAuthorization(ctx)
		ch <- RefreshResult{Refreshed: refreshed, Err: err}
		close(ch)
	}()
	return ch
}
