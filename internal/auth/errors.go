package auth

import "errors"

var (
	// ErrNotFound reports an id or api-key lookup miss.
	ErrNotFound = errors.New("auth: not found")

	// ErrInvalidCredentials collapses "no such principal" and "wrong
	// password" so callers cannot tell which half failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken collapses malformed, expired, revoked and unknown
	// tokens, for both the access and refresh kinds.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnsupportedCredential reports an api-key shape the orchestrator
	// cannot route.
	ErrUnsupportedCredential = errors.New("auth: unsupported credential")

	// ErrForbidden reports a tenant-boundary violation.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrUnauthorized reports a missing or unresolvable credential outside
	// the public auth namespace.
	ErrUnauthorized = errors.New("auth: unauthorized")

	ErrDuplicateUsername         = errors.New("auth: username already exists")
	ErrDuplicateOrganizationName = errors.New("auth: organization name already exists")
	ErrDuplicateClientAppName    = errors.New("auth: client app name already exists")
)
