// Package auth verifies caller identity and property ownership. The wider
// marketplace owns the user lifecycle; this service only validates the
// tokens it issues and answers "may this user touch this property".
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rental-access-control/backend/internal/storage"
)

// ErrTokenInvalid is returned for tokens that fail signature, expiry, or
// claim checks.
var ErrTokenInvalid = errors.New("invalid token")

// Claims are the JWT claims this service consumes. Subject carries the
// user ID.
type Claims struct {
	jwt.RegisteredClaims
}

// ParseToken validates and parses a JWT access token.
// It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}

// PropertyAuthorizer answers whether a user may act on a property. Event
// channel subscriptions and device routes both gate on this before anything
// is delivered or executed.
type PropertyAuthorizer interface {
	CanAccessProperty(ctx context.Context, userID, propertyID string) (bool, error)
}

// OwnerAuthorizer grants access to a property's owner only.
type OwnerAuthorizer struct {
	properties *storage.PropertyRepository
}

// NewOwnerAuthorizer creates an authorizer backed by the property table.
func NewOwnerAuthorizer(properties *storage.PropertyRepository) *OwnerAuthorizer {
	return &OwnerAuthorizer{properties: properties}
}

// CanAccessProperty reports whether the user owns the property.
func (a *OwnerAuthorizer) CanAccessProperty(ctx context.Context, userID, propertyID string) (bool, error) {
	return a.properties.IsOwner(ctx, propertyID, userID)
}
