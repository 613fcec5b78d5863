// Package idempotency replays the stored response when a mutating request is retried
// with the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL is how long a key stays claimed or replayable.
const DefaultTTL = 24 * time.Hour

// Outcome is the result of claiming a key.
type Outcome int

const (
	// Acquired means the caller owns the key and must Complete or Abandon it.
	Acquired Outcome = iota
	// Replay means a finished response is stored under the key.
	Replay
	// InFlight means another request holds the key.
	InFlight
)

// ErrKeyReused is returned when a key is presented again with a different request.
var ErrKeyReused = errors.New("idempotency: key reused with a different request")

// Ticket names one key as seen by one principal. Keys of different principals never collide.
type Ticket struct {
	Principal   string
	Key         string
	Fingerprint string
}

// ID is the storage identifier for the ticket.
func (t Ticket) ID() string {
	sum := sha256.Sum256([]byte(t.Principal + "\x00" + t.Key))
	return hex.EncodeToString(sum[:])
}

// Entry is the persisted state of a key.
type Entry struct {
	Principal   string              `json:"principal" firestore:"principal"`
	Fingerprint string              `json:"fingerprint" firestore:"fingerprint"`
	Done        bool                `json:"done" firestore:"done"`
	Status      int                 `json:"status,omitempty" firestore:"status"`
	Header      map[string][]string `json:"header,omitempty" firestore:"header"`
	Body        []byte              `json:"body,omitempty" firestore:"body"`
	CreatedAt   time.Time           `json:"createdAt" firestore:"createdAt"`
	ExpiresAt   time.Time           `json:"expiresAt" firestore:"expiresAt"`
}

// Snapshot is a recorded handler response.
type Snapshot struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists claims and their responses.
type Store interface {
	Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (Outcome, Entry, error)
	Complete(ctx context.Context, t Ticket, snap Snapshot, now time.Time, ttl time.Duration) error
	Abandon(ctx context.Context, t Ticket) error
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

func pendingEntry(t Ticket, now time.Time, ttl time.Duration) Entry {
	return Entry{
		Principal:   t.Principal,
		Fingerprint: t.Fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// classify decides the outcome for an existing, unexpired entry.
func classify(t Ticket, existing Entry) (Outcome, error) {
	if existing.Fingerprint != t.Fingerprint {
		return 0, ErrKeyReused
	}
	if existing.Done {
		return Replay, nil
	}
	return InFlight, nil
}

func completedEntry(t Ticket, createdAt time.Time, snap Snapshot, now time.Time, ttl time.Duration) Entry {
	if createdAt.IsZero() {
		createdAt = now
	}
	return Entry{
		Principal:   t.Principal,
		Fingerprint: t.Fingerprint,
		Done:        true,
		Status:      snap.Status,
		Header:      replayableHeader(snap.Header),
		Body:        append([]byte(nil), snap.Body...),
		CreatedAt:   createdAt,
		ExpiresAt:   now.Add(ttl),
	}
}

// Hop-by-hop and per-response headers are not replayed.
var skippedHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Date":              true,
	"Keep-Alive":        true,
	"Set-Cookie":        true,
	"Trailer":           true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"X-Request-Id":      true,
}

func replayableHeader(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		name = http.CanonicalHeaderKey(name)
		if skippedHeaders[name] {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
