package portals

import (
	"context"
	"errors"

	"portalsync-backend/services/vault"
)

// The automation error taxonomy. Everything raw coming out of the
// browser or a scraper is translated into one of these before it leaves
// the sync boundary.
var (
	// bad credentials or the portal rejected the login flow
	ErrLoginFailed = errors.New("login failed")
	// network or browser operation exceeded its bound
	ErrTimeout = errors.New("portal operation timed out")
	// could not reach the portal at all
	ErrPortalUnreachable = errors.New("portal unreachable")
	// programmer/config error, an action name nothing dispatches on
	ErrUnsupportedAction = errors.New("unsupported action")
	// programmer/config error, a portal-type tag with no registered connector
	ErrUnsupportedPortalType = errors.New("unsupported portal type")
)

// UserMessage translates an automation error into the short message a
// caller may show an end user. Raw internals never surface.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrLoginFailed):
		return "Login failed. Please check your credentials and try again."
	case errors.Is(err, ErrTimeout):
		return "The portal is taking too long to respond. Please try again later."
	case errors.Is(err, ErrPortalUnreachable):
		return "Cannot connect to the portal. Please check if it is accessible."
	case errors.Is(err, vault.ErrVaultMiss):
		return "Stored credentials are missing. Please reconnect this portal."
	case errors.Is(err, ErrUnsupportedAction), errors.Is(err, ErrUnsupportedPortalType):
		return "This operation is not supported."
	case err == nil:
		return ""
	}
	return "Portal sync failed. Please try again later."
}

// retryable reports whether a sync failure is worth one bounded retry
// with backoff. Credential problems never are.
func retryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrPortalUnreachable) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
