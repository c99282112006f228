package integration

import "errors"

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrIdentityNotFound    = errors.New("no workspace or portal identity could be resolved")
	ErrAmbiguousIdentity   = errors.New("portal domain matches more than one pending integration")
	ErrLinkTokenInvalid    = errors.New("linking token is invalid, expired or already used")
	ErrTokenRefreshFailed  = errors.New("token refresh rejected by portal, re-authorization required")
	ErrNotLinked           = errors.New("integration has no usable portal credential")
	ErrStaleWrite          = errors.New("integration was modified concurrently")
)
