package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuthorizer is a minimal Authorizer for exercising the package-level
// helpers and the async adapter.
type stubAuthorizer struct {
	authorized map[*Domain]bool
	refreshed  bool
	refreshErr error
	delay      time.Duration
}

func (s *stubAuthorizer) ProcessRequest(domain *Domain, req *http.Request) {
	if domain != nil && s.authorized[domain] {
		req.Header.Set("Authorization", "Stub")
	}
}

func (s *stubAuthorizer) IsAuthorizedForDomain(domain *Domain) bool {
	return domain != nil && s.authorized[domain]
}

func (s *stubAuthorizer) RefreshAuthorization(ctx context.Context) (bool, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.refreshed, s.refreshErr
}

func TestDomainIdentity(t *testing.T) {
	d1 := NewDomain("cl", "https://example.com/feeds/")
	d2 := NewDomain("cl", "https://example.com/feeds/")

	assert.Equal(t, "cl", d1.ServiceName())
	assert.Equal(t, "https://example.com/feeds/", d1.Scope())

	// Equal fields, distinct identities.
	m := map[*Domain]bool{d1: true}
	assert.True(t, m[d1])
	assert.False(t, m[d2])
}

func TestIsAuthorizedForDomainNilSafe(t *testing.T) {
	d := NewDomain("cl", "scope")

	assert.False(t, IsAuthorizedForDomain(nil, d))
	assert.False(t, IsAuthorizedForDomain(&stubAuthorizer{}, nil))

	a := &stubAuthorizer{authorized: map[*Domain]bool{d: true}}
	assert.True(t, IsAuthorizedForDomain(a, d))
}

func TestProcessRequestNilAuthorizer(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)

	ProcessRequest(nil, NewDomain("cl", "scope"), req)
	assert.Empty(t, req.Header)
}

func TestSecret(t *testing.T) {
	s := NewSecret("hunter2")
	assert.Equal(t, "hunter2", s.Reveal())
	assert.False(t, s.Empty())
	assert.Equal(t, "[redacted]", s.String())
	assert.Equal(t, "[redacted]", fmt.Sprintf("%v", s))

	// Alias the backing array so the overwrite is observable after Zero.
	backing := s.b

	s.Zero()
	assert.True(t, s.Empty())
	assert.Equal(t, "", s.Reveal())
	assert.Equal(t, make([]byte, len("hunter2")), backing)
}

func TestWipe(t *testing.T) {
	body := []byte("Auth=token123\n")
	Wipe(body)
	assert.Equal(t, make([]byte, len(body)), body)

	Wipe(nil)
}

func TestSecretNilReceiver(t *testing.T) {
	var s *Secret
	assert.True(t, s.Empty())
	assert.Equal(t, "", s.Reveal())
	s.Zero()
}

func TestWrapTransportError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, WrapTransportError(nil))
	})

	t.Run("context cancellation passes through", func(t *testing.T) {
		err := WrapTransportError(&url.Error{Op: "Post", URL: "https://x", Err: context.Canceled})
		assert.True(t, IsCanceled(err))
		assert.False(t, IsNetwork(err))
	})

	t.Run("connection failure", func(t *testing.T) {
		err := WrapTransportError(&url.Error{Op: "Post", URL: "https://x", Err: errors.New("connection refused")})
		assert.True(t, IsNetwork(err))
		assert.ErrorIs(t, err, ErrNetwork)
	})

	t.Run("proxy failure", func(t *testing.T) {
		err := WrapTransportError(&url.Error{Op: "Post", URL: "https://x", Err: errors.New("proxyconnect tcp: connection refused")})
		assert.True(t, IsNetwork(err))
		assert.ErrorIs(t, err, ErrProxy)
	})
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsDenied(fmt.Errorf("%w: invalid_grant", ErrDenied)))
	assert.True(t, IsProtocol(fmt.Errorf("%w: bad body", ErrProtocol)))
	assert.False(t, IsDenied(ErrProtocol))
	assert.True(t, IsCanceled(context.DeadlineExceeded))
}

func TestRefreshAsync(t *testing.T) {
	t.Run("delivers result", func(t *testing.T) {
		a := &stubAuthorizer{refreshed: true}
		res := <-RefreshAsync(context.Background(), a)
		assert.True(t, res.Refreshed)
		assert.NoError(t, res.Err)
	})

	t.Run("delivers error", func(t *testing.T) {
		a := &stubAuthorizer{refreshErr: ErrDenied}
		res := <-RefreshAsync(context.Background(), a)
		assert.False(t, res.Refreshed)
		assert.ErrorIs(t, res.Err, ErrDenied)
	})

	t.Run("nil authorizer", func(t *testing.T) {
		res := <-RefreshAsync(context.Background(), nil)
		assert.False(t, res.Refreshed)
		assert.NoError(t, res.Err)
	})

	t.Run("propagates cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		a := &stubAuthorizer{delay: time.Second, refreshed: true}
		res := <-RefreshAsync(ctx, a)
		assert.False(t, res.Refreshed)
		assert.True(t, IsCanceled(res.Err))
	})

	t.Run("channel closes after delivery", func(t *testing.T) {
		ch := RefreshAsync(context.Background(), &stubAuthorizer{})
		<-ch
		_, open := <-ch
		assert.False(t, open)
	})
}
