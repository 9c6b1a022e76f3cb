package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Authentication and transport errors shared by all authorizers.
var (
	// ErrNetwork indicates the authentication server could not be reached.
	ErrNetwork = errors.New("auth: cannot connect to the authentication server")

	// ErrProxy indicates the configured proxy could not be reached.
	ErrProxy = errors.New("auth: cannot connect to the proxy server")

	// ErrProtocol indicates a malformed or unexpected server response.
	ErrProtocol = errors.New("auth: invalid response from the authentication server")

	// ErrDenied indicates the credentials, verifier or grant were rejected.
	ErrDenied = errors.New("auth: access denied (bad credentials or revoked grant)")

	// ErrNotVerified indicates the account e-mail address has not been verified.
	ErrNotVerified = errors.New("auth: account e-mail address has not been verified")

	// ErrTermsNotAccepted indicates the user has not agreed to the service's
	// terms of service.
	ErrTermsNotAccepted = errors.New("auth: terms of service have not been accepted")

	// ErrCaptchaRequired indicates the server demanded a CAPTCHA answer and
	// none was supplied.
	ErrCaptchaRequired = errors.New("auth: a CAPTCHA answer is required")

	// ErrSecondFactorRequired indicates the account requires a second factor
	// which this protocol cannot provide; an application-specific password is
	// needed instead.
	ErrSecondFactorRequired = errors.New("auth: account requires a second factor (use an application-specific password)")

	// ErrAccountMigrated indicates the account has been migrated to a newer
	// authentication scheme and can no longer use this one.
	ErrAccountMigrated = errors.New("auth: account has been migrated")

	// ErrAccountDeleted indicates the account has been deleted.
	ErrAccountDeleted = errors.New("auth: account has been deleted")

	// ErrAccountDisabled indicates the account has been disabled.
	ErrAccountDisabled = errors.New("auth: account has been disabled")

	// ErrServiceDisabled indicates the requested service has been disabled
	// for this account.
	ErrServiceDisabled = errors.New("auth: service has been disabled for this account")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = errors.New("auth: service is temporarily unavailable")
)

// IsDenied returns true if the error indicates rejected credentials, an
// invalid verifier or an invalid grant.
func IsDenied(err error) bool {
	return errors.Is(err, ErrDenied)
}

// IsProtocol returns true if the error indicates a malformed server response.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// IsNetwork returns true if the error indicates the server or proxy could
// not be reached.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrProxy)
}

// IsCanceled returns true if the error stems from a canceled or expired
// context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// WrapTransportError translates an error returned by an http.Client into
// one of the shared error kinds. Context cancellation is passed through
// untouched so callers can detect it with IsCanceled.
func WrapTransportError(err error) error {
	if err == nil {
		return nil
	}
	if IsCanceled(err) {
		return err
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if IsCanceled(uerr.Err) {
			return uerr.Err
		}
		if strings.Contains(uerr.Err.Error(), "proxyconnect") {
			return fmt.Errorf("%w: %v", ErrProxy, uerr.Err)
		}
		return fmt.Errorf("%w: %v", ErrNetwork, uerr.Err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
