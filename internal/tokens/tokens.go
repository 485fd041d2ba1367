package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret is returned when a token is issued or parsed without a signing secret.
var ErrNoSecret = errors.New("tokens: signing secret is empty")

// Claims carried by a console session token. The token only wraps the
// session id; the session itself lives in the session repository.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// GenerateSessionToken creates a signed HS256 token for the given session
func GenerateSessionToken(secret []byte, sessionID, identity string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(secret)
}

// ParseSessionToken verifies signature and expiry and returns the claims.
func ParseSessionToken(secret []byte, token string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("tokens: token has no expiry")
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("tokens: token is missing sid or sub")
	}
	return &claims, nil
}
