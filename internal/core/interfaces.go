package core

import (
	"context"

	"cropyield/internal/types"
)

// Authenticator decouples the HTTP layer from the token format, allowing for
// easy mocking in tests.
type Authenticator interface {
	// ResolveToken verifies a bearer token and returns the Actor.
	//
	// Distinct Error Codes:
	// - Return ErrCodeAuthTokenInvalid if the token is malformed or its signature is wrong.
	// - Return ErrCodeAuthTokenExpired if the token is well-formed but expired.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}
