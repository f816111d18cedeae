package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrTokenExpired is returned for a token whose exp claim has passed.
var ErrTokenExpired = errors.New("auth token has expired: run 'rvtstudio login' again")

// Claims are the fields the backend puts in its auth tokens.
type Claims struct {
	jwt.StandardClaims
	ID           string `json:"id"`
	Type         string `json:"type"`
	CollectionID string `json:"collectionId"`
}

// ParseToken decodes the claims of token without checking its signature.
func ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing auth token: %w", err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("parsing auth token: missing record id")
	}
	return claims, nil
}

// Expiry returns the exp claim, or the zero time when it is unset.
func (c *Claims) Expiry() time.Time {
	if c.StandardClaims.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.StandardClaims.ExpiresAt, 0)
}

// Expired reports whether the token is past its exp claim at now.
func (c *Claims) Expired(now time.Time) bool {
	exp := c.Expiry()
	return !exp.IsZero() && !now.Before(exp)
}

// Remaining returns how long the token stays valid, never negative.
func (c *Claims) Remaining(now time.Time) time.Duration {
	exp := c.Expiry()
	if exp.IsZero() || now.After(exp) {
		return 0
	}
	return exp.Sub(now)
}
