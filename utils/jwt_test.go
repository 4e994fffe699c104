package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"past exp", signed(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), true},
		{"future exp", signed(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), false},
		{"no exp", signed(t, jwt.MapClaims{"sub": "p1"}), false},
		{"opaque", "not-a-jwt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenExpired(tt.token, now); got != tt.want {
				t.Fatalf("TokenExpired = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestSubjectFromToken(t *testing.T) {
	sub, err := SubjectFromToken(signed(t, jwt.MapClaims{"sub": "partner-42"}))
	if err != nil || sub != "partner-42" {
		t.Fatalf("SubjectFromToken = %q, %v", sub, err)
	}
	if _, err := SubjectFromToken(signed(t, jwt.MapClaims{"exp": 1})); err == nil {
		t.Fatal("SubjectFromToken accepted a token without sub")
	}
	if _, err := SubjectFromToken("opaque"); err == nil {
		t.Fatal("SubjectFromToken accepted a non-JWT")
	}
}
