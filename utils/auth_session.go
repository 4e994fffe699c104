// File: partnerdesk/utils/auth_session.go
package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const PartnerSessionPrefix = "partnerSession:"

// ErrSessionNotFound is returned when no session is stored under the id.
var ErrSessionNotFound = errors.New("partner session not found")

// PartnerSession is what the OTP onboarding flow leaves behind once a partner signs in.
type PartnerSession struct {
	PartnerID     string    `json:"partnerId"`
	Phone         string    `json:"phone"`
	Status        string    `json:"status"` // e.g., "otp_verified", "approved"
	Token         string    `json:"token,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// SessionStore reads and writes partner sessions in Redis.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Save stores the session with the store's TTL.
func (s *SessionStore) Save(ctx context.Context, sessionID string, session PartnerSession) error {
	session.LastUpdatedAt = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal partner session: %w", err)
	}
	if err := s.client.Set(ctx, PartnerSessionPrefix+sessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save partner session: %w", err)
	}
	return nil
}

// Get retrieves the session, returning ErrSessionNotFound when the key is absent.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*PartnerSession, error) {
	data, err := s.client.Get(ctx, PartnerSessionPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var session PartnerSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal partner session: %w", err)
	}
	return &session, nil
}

// Delete removes a partner session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, PartnerSessionPrefix+sessionID).Err()
}
