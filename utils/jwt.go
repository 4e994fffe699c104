package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// TokenExpired reports whether the bearer token carries an exp claim in the past.
// The signature is not checked here; the backend is the one that verifies it.
// Tokens that are not JWTs are treated as opaque and never expired.
func TokenExpired(tokenString string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return false
	}
	if _, ok := claims["exp"]; !ok {
		return false
	}
	return !claims.VerifyExpiresAt(now.Unix(), true)
}

// SubjectFromToken extracts the sub claim (the partner id) without verifying the signature.
func SubjectFromToken(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("token does not contain a valid 'sub' claim")
	}
	return sub, nil
}
