package socket

import (
	"context"
	"errors"
	"time"

	"partnerdesk/utils"

	"go.uber.org/zap"
)

// TokenSource yields a partner credential, or "" when it has none.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a credential fixed at startup, typically PARTNER_TOKEN.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// SessionReader is the part of utils.SessionStore a token source needs.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*utils.PartnerSession, error)
}

// SessionTokenSource reads the token the onboarding flow stored in Redis.
type SessionTokenSource struct {
	Store     SessionReader
	SessionID string
}

func (s SessionTokenSource) Token(ctx context.Context) (string, error) {
	if s.Store == nil || s.SessionID == "" {
		return "", nil
	}
	session, err := s.Store.Get(ctx, s.SessionID)
	if errors.Is(err, utils.ErrSessionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return session.Token, nil
}

// ChainTokenSource asks each source in order and returns the first usable
// token. Expired JWTs are skipped; a failing source is logged and skipped.
type ChainTokenSource struct {
	Sources []TokenSource
	Logger  *zap.Logger
	Now     func() time.Time
}

func (c ChainTokenSource) Token(ctx context.Context) (string, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	for i, src := range c.Sources {
		if src == nil {
			continue
		}
		token, err := src.Token(ctx)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Warn("token source failed", zap.Int("source", i), zap.Error(err))
			}
			continue
		}
		if token == "" {
			continue
		}
		if utils.TokenExpired(token, now()) {
			if c.Logger != nil {
				c.Logger.Warn("skipping expired token", zap.Int("source", i))
			}
			continue
		}
		return token, nil
	}
	return "", nil
}
