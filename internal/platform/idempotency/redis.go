package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "furnitune:idem:"

// RedisStore keeps entries as JSON strings. Expiry rides on key TTLs, so Sweep does nothing.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. An empty prefix uses "furnitune:idem:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry := pendingEntry(t, now.UTC(), ttl)
	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, Entry{}, fmt.Errorf("idempotency: encode entry: %w", err)
	}

	// The key may expire between SETNX and GET; a second round covers that.
	for range 2 {
		ok, err := s.client.SetNX(ctx, s.prefix+t.ID(), payload, ttl).Result()
		if err != nil {
			return 0, Entry{}, fmt.Errorf("idempotency: claim: %w", err)
		}
		if ok {
			return Acquired, entry, nil
		}
		existing, found, err := s.load(ctx, t)
		if err != nil {
			return 0, Entry{}, err
		}
		if !found {
			continue
		}
		outcome, err := classify(t, existing)
		return outcome, existing, err
	}
	return 0, Entry{}, errors.New("idempotency: claim raced with expiry twice")
}

func (s *RedisStore) Complete(ctx context.Context, t Ticket, snap Snapshot, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	existing, found, err := s.load(ctx, t)
	if err != nil {
		return err
	}
	if found && existing.Fingerprint != t.Fingerprint {
		return ErrKeyReused
	}
	payload, err := json.Marshal(completedEntry(t, existing.CreatedAt, snap, now.UTC(), ttl))
	if err != nil {
		return fmt.Errorf("idempotency: encode entry: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+t.ID(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Abandon(ctx context.Context, t Ticket) error {
	if err := s.client.Del(ctx, s.prefix+t.ID()).Err(); err != nil {
		return fmt.Errorf("idempotency: abandon: %w", err)
	}
	return nil
}

func (s *RedisStore) Sweep(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) load(ctx context.Context, t Ticket) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+t.ID()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: decode entry: %w", err)
	}
	return entry, true, nil
}
