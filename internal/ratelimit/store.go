// internal/ratelimit/store.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store tracks two kinds of time-windowed keys per (sender, recipient) pair:
// a short send cooldown and the provider's 24h free-form-reply session window.
//
// Degradation policy when the backing store is down: the send slot fails open
// (a Redis outage must not halt a campaign; a duplicate send inside a few
// seconds is acceptable) and the session window fails closed (when in doubt,
// use a template message, which is always permitted).
type Store interface {
	// CheckAndReserveSendSlot atomically reserves the cooldown slot. True
	// means the caller may send now; the slot stays reserved for the TTL.
	CheckAndReserveSendSlot(ctx context.Context, sender, recipient string) (bool, error)

	// IsSessionWindowOpen reports whether free-form replies are currently
	// allowed. No side effect.
	IsSessionWindowOpen(ctx context.Context, sender, recipient string) (bool, error)

	// OpenSessionWindow (re)opens the session window, called whenever an
	// inbound message arrives from the recipient.
	OpenSessionWindow(ctx context.Context, sender, recipient string) error
}

func cooldownKey(sender, recipient string) string {
	return fmt.Sprintf("cooldown:%s:%s", sender, recipient)
}

func sessionKey(sender, recipient string) string {
	return fmt.Sprintf("session:%s:%s", sender, recipient)
}

// RedisStore implements Store on a Redis client using SET NX with TTL.
type RedisStore struct {
	rc            *redis.Client
	cooldownTTL   time.Duration
	sessionWindow time.Duration
	logger        zerolog.Logger
}

func NewRedisStore(rc *redis.Client, cooldownTTL, sessionWindow time.Duration, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		rc:            rc,
		cooldownTTL:   cooldownTTL,
		sessionWindow: sessionWindow,
		logger:        logger,
	}
}

func (s *RedisStore) CheckAndReserveSendSlot(ctx context.Context, sender, recipient string) (bool, error) {
	ok, err := s.rc.SetNX(ctx, cooldownKey(sender, recipient), "1", s.cooldownTTL).Result()
	if err != nil {
		// Fail open: rate limiting is optional infrastructure.
		s.logger.Warn().Err(err).Str("recipient", recipient).Msg("send slot check failed, allowing send")
		return true, nil
	}
	return ok, nil
}

func (s *RedisStore) IsSessionWindowOpen(ctx context.Context, sender, recipient string) (bool, error) {
	n, err := s.rc.Exists(ctx, sessionKey(sender, recipient)).Result()
	if err != nil {
		// Fail closed: a template message is always permitted.
		s.logger.Warn().Err(err).Str("recipient", recipient).Msg("session window check failed, treating as closed")
		return false, nil
	}
	return n > 0, nil
}

func (s *RedisStore) OpenSessionWindow(ctx context.Context, sender, recipient string) error {
	start := time.Now().UTC().Format(time.RFC3339)
	return s.rc.Set(ctx, sessionKey(sender, recipient), start, s.sessionWindow).Err()
}

var _ Store = (*RedisStore)(nil)
