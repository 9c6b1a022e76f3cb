package clientlogin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-labs/gdauth/auth"
)

func TestParseResponse(t *testing.T) {
	fields := parseResponse("SID=abc\nLSID=def\nAuth=token123\n")
	assert.Equal(t, "token123", fields["Auth"])
	assert.Equal(t, "abc", fields["SID"])

	fields = parseResponse("Error=BadAuthentication\r\nInfo=InvalidSecondFactor\r\n")
	assert.Equal(t, "BadAuthentication", fields["Error"])
	assert.Equal(t, "InvalidSecondFactor", fields["Info"])

	assert.Empty(t, parseResponse("no equals sign here"))
}

func TestAuthenticate(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"accountType": r.PostForm.Get("accountType"),
			"Email":       r.PostForm.Get("Email"),
			"Passwd":      r.PostForm.Get("Passwd"),
			"service":     r.PostForm.Get("service"),
			"source":      r.PostForm.Get("source"),
		}
		fmt.Fprintf(w, "SID=x\nAuth=token-%s\n", r.PostForm.Get("service"))
	}))
	defer srv.Close()

	domain := auth.NewDomain("cl", "https://www.google.com/calendar/feeds/")
	a := New("example-app-1.0", []*auth.Domain{domain},
		WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))

	err := a.Authenticate(context.Background(), "liz", "password")
	require.NoError(t, err)

	assert.Equal(t, "HOSTED_OR_GOOGLE", gotForm["accountType"])
	assert.Equal(t, "liz@gmail.com", gotForm["Email"])
	assert.Equal(t, "password", gotForm["Passwd"])
	assert.Equal(t, "cl", gotForm["service"])
	assert.Equal(t, "example-app-1.0", gotForm["source"])
	assert.Equal(t, "liz@gmail.com", a.Username())
	assert.True(t, a.IsAuthorizedForDomain(domain))

	req, err := http.NewRequest(http.MethodGet, "https://www.google.com/calendar/feeds/", nil)
	require.NoError(t, err)
	a.ProcessRequest(domain, req)
	assert.Equal(t, "GoogleLogin auth=token-cl", req.Header.Get("Authorization"))
}

func TestAuthenticateKeepsFullAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "liz@example.com", r.PostForm.Get("Email"))
		fmt.Fprint(w, "Auth=tok\n")
	}))
	defer srv.Close()

	domain := auth.NewDomain("cl", "scope")
	a := New("app", []*auth.Domain{domain}, WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
	require.NoError(t, a.Authenticate(context.Background(), "liz@example.com", "pw"))
	assert.Equal(t, "liz@example.com", a.Username())
}

// If any one domain fails, no domain ends up authorized.
func TestAuthenticateAtomicity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("service") == "wise" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "Error=BadAuthentication\n")
			return
		}
		fmt.Fprint(w, "Auth=tok\n")
	}))
	defer srv.Close()

	domains := []*auth.Domain{
		auth.NewDomain("cl", "scope-cl"),
		auth.NewDomain("wise", "scope-wise"),
		auth.NewDomain("cp", "scope-cp"),
	}
	a := New("app", []*auth.Domain{domains[0], domains[1], domains[2]},
		WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))

	err := a.Authenticate(context.Background(), "liz", "pw")
	assert.ErrorIs(t, err, auth.ErrDenied)
	for _, d := range domains {
		assert.False(t, a.IsAuthorizedForDomain(d), d.ServiceName())
	}
	assert.Empty(t, a.Username())
}

// A failed re-authentication clears credentials from the earlier success.
func TestAuthenticateFailureClearsPreviousCredentials(t *testing.T) {
	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "Error=BadAuthentication\n")
			return
		}
		fmt.Fprint(w, "Auth=tok\n")
	}))
	defer srv.Close()

	domain := auth.NewDomain("cl", "scope")
	a := New("app", []*auth.Domain{domain}, WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))

	require.NoError(t, a.Authenticate(context.Background(), "liz", "pw"))
	require.True(t, a.IsAuthorizedForDomain(domain))

	fail = true
	require.Error(t, a.Authenticate(context.Background(), "liz", "wrong"))
	assert.False(t, a.IsAuthorizedForDomain(domain))
	assert.Empty(t, a.Username())
}

func TestAuthenticateCaptcha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("logintoken") == "" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "Error=CaptchaRequired\nCaptchaToken=ct123\nCaptchaUrl=Captcha?ctoken=ct123\n")
			return
		}
		assert.Equal(t, "ct123", r.PostForm.Get("logintoken"))
		assert.Equal(t, "qwerty", r.PostForm.Get("loginanswer"))
		fmt.Fprint(w, "Auth=tok\n")
	}))
	defer srv.Close()

	var challengedURI string
	domain := auth.NewDomain("cl", "scope")
	a := New("app", []*auth.Domain{domain},
		WithHTTPClient(srv.Client()), WithEndpoint(srv.URL),
		WithCaptchaHandler(func(imageURI string) string {
			challengedURI = imageURI
			return "qwerty"
		}))

	require.NoError(t, a.Authenticate(context.Background(), "liz", "pw"))
	assert.Equal(t, "http://www.google.com/accounts/Captcha?ctoken=ct123", challengedURI)
	assert.True(t, a.IsAuthorizedForDomain(domain))
}

func TestAuthenticateCaptchaWithoutHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "Error=CaptchaRequired\nCaptchaToken=ct123\nCaptchaUrl=Captcha?ctoken=ct123\n")
	}))
	defer srv.Close()

	domain := auth.NewDomain("cl", "scope")
	a := New("app", []*auth.Domain{domain}, WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))

	err := a.Authenticate(context.Background(), "liz", "pw")
	assert.ErrorIs(t, err, auth.ErrCaptchaRequired)
}

func TestAuthenticateErrorMapping(t *testing.T) {
	cases := []struct {
		body string
		want error
	}{
		{"Error=BadAuthentication\n", auth.ErrDenied},
		{"Error=BadAuthentication\nInfo=InvalidSecondFactor\n", auth.ErrSecondFactorRequired},
		{"Error=NotVerified\n", auth.ErrNotVerified},
		{"Error=TermsNotAgreed\n", auth.ErrTermsNotAccepted},
		{"Error=AccountMigrated\n", auth.ErrAccountMigrated},
		{"Error=AccountDeleted\n", auth.ErrAccountDeleted},
		{"Error=AccountDisabled\n", auth.ErrAccountDisabled},
		{"Error=ServiceDisabled\n", auth.ErrServiceDisabled},
		{"Error=ServiceUnavailable\n", auth.ErrServiceUnavailable},
		{"Error=SomethingNew\n", auth.ErrProtocol},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			domain := auth.NewDomain("cl", "scope")
			a := New("app", []*auth.Domain{domain}, WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
			err := a.Authenticate(context.Background(), "liz", "pw")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

// A throttling response puts the limiter into backoff so follow-up
// attempts do not hammer the endpoint.
func TestServerThrottlingSetsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "Error=ServiceUnavailable\n")
	}))
	defer srv.Close()

	domain := auth.NewDomain("cl", "scope")
	a := New("app", []*auth.Domain{domain}, WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))

	err := a.Authenticate(context.Background(), "liz", "pw")
	assert.ErrorIs(t, err, auth.ErrServiceUnavailable)
	assert.False(t, a.limiter.Allow())
}

func TestProcessRequestSkipsPlaintext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Auth=tok\n")
	}))
	defer srv.Close()

	domain := auth.NewDomain("cl", "scope")
	a := New("app", []*auth.Domain{domain}, WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
	require.NoError(t, a.Authenticate(context.Background(), "liz", "pw"))

	req, err := http.NewRequest(http.MethodGet, "http://www.google.com/calendar/feeds/", nil)
	require.NoError(t, err)
	a.ProcessRequest(domain, req)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestProcessRequestUnauthorized(t *testing.T) {
	domain := auth.NewDomain("cl", "scope")
	a := New("app", []*auth.Domain{domain})

	req, err := http.NewRequest(http.MethodGet, "https://www.google.com/", nil)
	require.NoError(t, err)
	a.ProcessRequest(domain, req)
	assert.Empty(t, req.Header)
	a.ProcessRequest(nil, req)
	assert.Empty(t, req.Header)
}

func TestRefreshAuthorizationNoOp(t *testing.T) {
	a := New("app", []*auth.Domain{auth.NewDomain("cl", "scope")})
	refreshed, err := a.RefreshAuthorization(context.Background())
	assert.False(t, refreshed)
	assert.NoError(t, err)
}
