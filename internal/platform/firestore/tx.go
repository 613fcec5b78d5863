package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/status"
)

type txKey struct{}

// TxOption customises UnitOfWork transactions.
type TxOption func(*UnitOfWork)

// WithTxAttempts caps how often Firestore retries a contended transaction.
func WithTxAttempts(n int) TxOption {
	return func(u *UnitOfWork) {
		if n > 0 {
			u.attempts = n
		}
	}
}

// WithTxTimeout bounds a whole transaction including retries.
func WithTxTimeout(d time.Duration) TxOption {
	return func(u *UnitOfWork) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// UnitOfWork runs callbacks in one Firestore transaction. Collections read and write through
// the transaction found on the callback context.
type UnitOfWork struct {
	provider *Provider
	attempts int
	timeout  time.Duration
}

func NewUnitOfWork(provider *Provider, opts ...TxOption) *UnitOfWork {
	u := &UnitOfWork{provider: provider, attempts: 5, timeout: 15 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

// RunInTx executes fn transactionally. A nested call joins the outer transaction. fn may run
// more than once under contention and must not have effects outside Firestore.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	client, err := u.provider.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	}, firestore.MaxAttempts(u.attempts))
	if err == nil {
		return nil
	}
	// Domain errors returned by fn are passed through untouched.
	var wrapped *Error
	if _, grpcErr := status.FromError(err); grpcErr || errors.As(err, &wrapped) {
		return WrapError("transaction", err)
	}
	return err
}

func txFrom(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}
