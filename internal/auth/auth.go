// Package auth verifies the HS256 tokens issued by the identity layer and
// mints equivalent tokens for local development.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coaching-schedule-api/internal/model"
)

var ErrBadToken = errors.New("invalid token")

type Claims struct {
	ProfileID string     `json:"pid"`
	Role      model.Role `json:"role"`
	Name      string     `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() model.Actor {
	return model.Actor{ProfileID: c.ProfileID, Role: c.Role, Name: c.Name}
}

func MakeToken(a model.Actor, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		ProfileID: a.ProfileID,
		Role:      a.Role,
		Name:      a.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ProfileID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func ParseToken(raw, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrBadToken
	}
	if c.ProfileID == "" {
		return nil, ErrBadToken
	}
	switch c.Role {
	case model.RoleCoach, model.RoleClient:
	default:
		return nil, ErrBadToken
	}
	return c, nil
}
