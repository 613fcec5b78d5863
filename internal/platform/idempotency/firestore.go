package idempotency

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection = "idempotency_keys"
	defaultSweepLimit = 200
)

// FirestoreStore keeps entries in the idempotency_keys collection. Expired documents are
// treated as absent and removed by Sweep.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	attempts   int
}

// FirestoreOption customises a FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithTxAttempts caps transaction retries.
func WithTxAttempts(n int) FirestoreOption {
	return func(s *FirestoreStore) {
		if n > 0 {
			s.attempts = n
		}
	}
}

func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{client: client, collection: defaultCollection, attempts: 5}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *FirestoreStore) doc(t Ticket) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(t.ID())
}

func (s *FirestoreStore) Claim(ctx context.Context, t Ticket, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref := s.doc(t)

	var (
		outcome Outcome
		entry   Entry
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var existing Entry
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			if now.Before(existing.ExpiresAt) {
				entry = existing
				outcome, err = classify(t, existing)
				return err
			}
		}
		entry = pendingEntry(t, now, ttl)
		outcome = Acquired
		return tx.Set(ref, entry)
	}, firestore.MaxAttempts(s.attempts))
	if err != nil {
		return 0, Entry{}, err
	}
	return outcome, entry, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, t Ticket, snap Snapshot, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.doc(t)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var createdAt time.Time
		doc, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var existing Entry
			if err := doc.DataTo(&existing); err != nil {
				return err
			}
			if existing.Fingerprint != t.Fingerprint {
				return ErrKeyReused
			}
			createdAt = existing.CreatedAt
		}
		return tx.Set(ref, completedEntry(t, createdAt, snap, now.UTC(), ttl))
	}, firestore.MaxAttempts(s.attempts))
}

func (s *FirestoreStore) Abandon(ctx context.Context, t Ticket) error {
	_, err := s.doc(t).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("idempotency: abandon: %w", err)
	}
	return nil
}

// Sweep deletes up to limit expired entries and reports how many went.
func (s *FirestoreStore) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	docs, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("idempotency: sweep query: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	bw := s.client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return 0, fmt.Errorf("idempotency: sweep delete: %w", err)
		}
	}
	bw.End()
	return len(docs), nil
}
