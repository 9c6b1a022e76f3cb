package clientlogin

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/halcyon-labs/gdauth/auth"
)

// Error codes from the ClientLogin protocol.
const (
	errBadAuthentication  = "BadAuthentication"
	errNotVerified        = "NotVerified"
	errTermsNotAgreed     = "TermsNotAgreed"
	errCaptchaRequired    = "CaptchaRequired"
	errAccountMigrated    = "AccountMigrated"
	errAccountDeleted     = "AccountDeleted"
	errAccountDisabled    = "AccountDisabled"
	errServiceDisabled    = "ServiceDisabled"
	errServiceUnavailable = "ServiceUnavailable"

	// Info value accompanying BadAuthentication when the account needs a
	// second factor.
	infoInvalidSecondFactor = "InvalidSecondFactor"
)

// parseResponse splits a ClientLogin plain-text response into its
// key=value fields. Lines without '=' are ignored.
func parseResponse(body string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		fields[key] = value
	}
	return fields
}

// mapErrorResponse translates an error response body into one of the
// shared error kinds. The CAPTCHA case is handled before this is called.
func mapErrorResponse(status int, fields map[string]string) error {
	switch fields["Error"] {
	case errBadAuthentication:
		if fields["Info"] == infoInvalidSecondFactor {
			return auth.ErrSecondFactorRequired
		}
		return auth.ErrDenied
	case errNotVerified:
		return auth.ErrNotVerified
	case errTermsNotAgreed:
		return auth.ErrTermsNotAccepted
	case errAccountMigrated:
		return auth.ErrAccountMigrated
	case errAccountDeleted:
		return auth.ErrAccountDeleted
	case errAccountDisabled:
		return auth.ErrAccountDisabled
	case errServiceDisabled:
		return auth.ErrServiceDisabled
	case errServiceUnavailable:
		return auth.ErrServiceUnavailable
	}
	if status == http.StatusServiceUnavailable {
		return auth.ErrServiceUnavailable
	}
	return fmt.Errorf("%w: HTTP %d with error code %q", auth.ErrProtocol, status, fields["Error"])
}
