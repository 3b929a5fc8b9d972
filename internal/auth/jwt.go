// Package auth verifies the bearer tokens issued by the account service.
// Tokens are HS256 JWTs whose "id" claim carries the user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cropyield/internal/types"
)

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

// JWTAuthenticator resolves bearer tokens to Actors.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	clock  types.Clock
}

// NewJWTAuthenticator creates an authenticator for tokens signed with secret.
// A non-empty issuer is required to match the iss claim.
func NewJWTAuthenticator(secret, issuer string, clock types.Clock) *JWTAuthenticator {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &JWTAuthenticator{
		secret: []byte(secret),
		issuer: issuer,
		clock:  clock,
	}
}

// ResolveToken implements core.Authenticator.
//
// Distinct Error Codes:
//   - ErrCodeAuthTokenExpired if the signature is valid but exp has passed.
//   - ErrCodeAuthTokenInvalid for everything else.
func (a *JWTAuthenticator) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", err)
	}
	if !parsed.Valid {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil)
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token has no user id", nil)
	}

	return &types.Actor{
		ID:       userID,
		Type:     types.ActorTypeUser,
		Verified: true,
	}, nil
}

// IssueToken signs a token for userID valid for ttl. Local tooling and tests
// use it; production tokens come from the account service.
func (a *JWTAuthenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    a.issuer,
		},
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
