package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrRoomMissing = errors.New("token has no room claim")

// JoinClaims is the bearer credential the router accepts: which room
// the holder may join, as which identity, and for how long.
type JoinClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// MintJoinToken signs a join token for a room/identity pair.
func MintJoinToken(secret, room, identity string, ttl time.Duration, now time.Time) (string, error) {
	claims := JoinClaims{
		Room: room,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign join token: %w", err)
	}
	return token, nil
}

// ParseJoinToken verifies a token and returns its claims.
func ParseJoinToken(secret, raw string) (*JoinClaims, error) {
	var claims JoinClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse join token: %w", err)
	}
	if claims.Room == "" {
		return nil, ErrRoomMissing
	}
	return &claims, nil
}
