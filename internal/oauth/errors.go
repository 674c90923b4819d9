package oauth

import "errors"

var (
	// ErrInvalidState means the CSRF state is unknown, expired, or was
	// already consumed. The user must restart the connect flow.
	ErrInvalidState = errors.New("invalid or expired oauth state")

	// ErrTokenExchange means the platform rejected the authorization
	// code. Codes are single-use, so this is never retried.
	ErrTokenExchange = errors.New("token exchange rejected")

	// ErrNotRefreshable means the account has no refresh token; the
	// caller must prompt the user to re-authorize.
	ErrNotRefreshable = errors.New("account has no refresh token")

	// ErrRefreshFailed means the refresh token is dead. The account is
	// marked expired and the user must reconnect.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrAccountRevoked means the account was disconnected and cannot be
	// used without a full re-authorization.
	ErrAccountRevoked = errors.New("account is revoked")
)
