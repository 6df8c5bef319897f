package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNetwork            = errors.New("network failure")
	ErrUnknown            = errors.New("unknown auth error")
	ErrRefreshFailed      = errors.New("session refresh failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNoSession          = errors.New("no active session")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMalformedSession   = errors.New("malformed persisted session")
	ErrOAuthStateMismatch = errors.New("oauth state mismatch")
	ErrOAuthMissingCode   = errors.New("oauth callback is missing the auth code")
	ErrOAuthNotAuthorized = errors.New("oauth session has no access token")
)

// RequestError describes a failed identity call. Kind is one of the sentinel
// errors above and is matched by errors.Is.
type RequestError struct {
	Op         string
	StatusCode int
	Kind       error
	Code       string
	Err        error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	default:
		return e.Op
	}
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RequestError) Is(target error) bool {
	return e != nil && e.Kind != nil && target == e.Kind
}

// Kind maps err onto the short error code reported to the UI.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrOAuthStateMismatch), errors.Is(err, ErrOAuthMissingCode), errors.Is(err, ErrOAuthNotAuthorized):
		return "oauth_failed"
	default:
		return "unknown"
	}
}
