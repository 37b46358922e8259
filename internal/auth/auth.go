// Package auth carries the requesting user's identity through a context.
// There is no credential verification here: authentication proper is an
// outer-layer concern, and the core only needs a trustworthy user ID to
// scope rows, locks, and cache epochs.
package auth

import (
	"context"
	"fmt"
)

// UserClaims identifies the authenticated user for the current request.
type UserClaims struct {
	UID         string
	Email       string
	DisplayName string
}

type contextKey string

const userClaimsKey contextKey = "user_claims"

// WithUserClaims returns a context carrying the given claims.
func WithUserClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, userClaimsKey, claims)
}

// GetUserClaims extracts user claims from the context.
func GetUserClaims(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(userClaimsKey).(*UserClaims)
	return claims, ok
}

// RequireAuth extracts user claims from context or returns an error.
func RequireAuth(ctx context.Context) (*UserClaims, error) {
	claims, ok := GetUserClaims(ctx)
	if !ok {
		return nil, fmt.Errorf("user not authenticated")
	}
	return claims, nil
}

// RequireUserAccess verifies the authenticated user matches the requested
// user ID. An empty requested ID means "the authenticated user".
func RequireUserAccess(ctx context.Context, requestedUserID string) (*UserClaims, error) {
	claims, err := RequireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if requestedUserID != "" && requestedUserID != claims.UID {
		return nil, fmt.Errorf("cannot access another user's resources")
	}
	return claims, nil
}
