package njuauth

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolShape means the login page markup no longer matches what the
	// handshake expects, retrying will not help until the extractor is updated.
	ErrProtocolShape = errors.New("the login page of the authentication server has changed shape")
	// ErrAuthUnavailable means the authentication server could not be reached
	// before the login outcome was known.
	ErrAuthUnavailable = errors.New("the authentication server is unavailable, try again later")
	ErrCaptchaResolution  = errors.New("failed to recognize the captcha, try again later")
	ErrInvalidCredential  = errors.New("incorrect account or password")
	ErrPlatformActivation = errors.New("logged in, but the course platform failed to activate the session, try again later")
	ErrUnknownAuth        = errors.New("unknown authentication error, try again later")
)

// UnknownAuthError is returned when the login form is answered with a status
// that is neither a rejection (200) nor an acceptance (302).
type UnknownAuthError struct {
	Status int
}

func (e *UnknownAuthError) Error() string {
	return fmt.Sprintf("%s (status %d)", ErrUnknownAuth.Error(), e.Status)
}

func (e *UnknownAuthError) Is(target error) bool {
	return target == ErrUnknownAuth
}
