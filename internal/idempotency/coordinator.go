// Package idempotency deduplicates retried mutating requests. A record keyed
// by (user, method, path, idempotency key) moves through
// ABSENT → IN_PROGRESS → COMPLETED; failures delete the record so the same
// key and payload can retry cleanly, and expired records count as absent.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/creditledger/internal/models"
	"github.com/punchamoorthee/creditledger/internal/store"
)

var (
	// ErrConflict rejects a concurrent duplicate: the key's previous attempt
	// is still inside its in-progress window.
	ErrConflict = errors.New("request already in progress")

	// ErrMismatch rejects key reuse with a different payload. A key is bound
	// to one request body for its whole lifetime.
	ErrMismatch = errors.New("idempotency key reused with different payload")
)

// Ticket is an admission handle. A nil Ticket means the request carried no
// key and runs without deduplication.
type Ticket struct {
	scope models.IdempotencyScope
}

// Coordinator implements the per-key state machine on top of an
// IdempotencyStore. inProgressTTL bounds how long an attempt may run before a
// retry may take over the key; completedTTL bounds how long a cached response
// is replayed.
type Coordinator struct {
	store         store.IdempotencyStore
	inProgressTTL time.Duration
	completedTTL  time.Duration
	now           func() time.Time
}

func NewCoordinator(s store.IdempotencyStore, inProgressTTL, completedTTL time.Duration) *Coordinator {
	return &Coordinator{
		store:         s,
		inProgressTTL: inProgressTTL,
		completedTTL:  completedTTL,
		now:           time.Now,
	}
}

// Admit decides the fate of one request. It returns a non-nil Ticket when the
// operation should run, a CachedResponse when a completed attempt should be
// replayed verbatim, or ErrConflict/ErrMismatch. An empty key is a
// passthrough: nil ticket, nil response, nil error.
func (c *Coordinator) Admit(ctx context.Context, userID int64, method, path, key string, payload []byte) (*Ticket, *models.CachedResponse, error) {
	if key == "" {
		return nil, nil, nil
	}

	digest, err := PayloadDigest(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("hash payload: %w", err)
	}

	scope := models.IdempotencyScope{UserID: userID, Method: method, Path: path, Key: key}
	now := c.now()
	fresh := &models.IdempotencyRecord{
		Scope:           scope,
		Status:          models.IdempotencyInProgress,
		PayloadHash:     digest,
		InProgressUntil: now.Add(c.inProgressTTL),
		ExpiresAt:       now.Add(c.completedTTL),
	}

	rec, err := c.store.Get(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case rec == nil:
		if err := c.store.Create(ctx, fresh); err != nil {
			if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
				return nil, nil, ErrConflict
			}
			return nil, nil, err
		}
		return &Ticket{scope: scope}, nil, nil

	case !rec.ExpiresAt.After(now):
		// Expired records are absent; reap lazily by replacing in place.
		if err := c.store.Replace(ctx, fresh); err != nil {
			if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
				return nil, nil, ErrConflict
			}
			return nil, nil, err
		}
		return &Ticket{scope: scope}, nil, nil

	case rec.PayloadHash != digest:
		return nil, nil, ErrMismatch

	case rec.Status == models.IdempotencyInProgress && rec.InProgressUntil.After(now):
		return nil, nil, ErrConflict

	case rec.Status == models.IdempotencyInProgress:
		// The previous attempt is abandoned. Take over its window; a lost
		// CAS means another retry got there first.
		if err := c.store.ExtendInProgress(ctx, scope, rec.InProgressUntil, now.Add(c.inProgressTTL)); err != nil {
			if errors.Is(err, store.ErrStaleRecord) {
				return nil, nil, ErrConflict
			}
			return nil, nil, err
		}
		return &Ticket{scope: scope}, nil, nil

	default: // completed
		return nil, &models.CachedResponse{Status: rec.ResponseStatus, Body: rec.ResponseBody}, nil
	}
}

// Finalize records the outcome of an admitted request. A 2xx response is
// persisted for replay; anything else deletes the record so a retry with the
// same key and payload is not poisoned. A nil ticket is a no-op.
func (c *Coordinator) Finalize(ctx context.Context, t *Ticket, status int, body []byte) error {
	if t == nil {
		return nil
	}
	if status >= 200 && status < 300 {
		return c.store.Complete(ctx, t.scope, status, body)
	}
	return c.store.Delete(ctx, t.scope)
}

// PayloadDigest hashes a canonical form of the JSON payload: the document is
// decoded and re-encoded so object keys are sorted at every level, making the
// digest independent of field order on the wire.
func PayloadDigest(payload []byte) (string, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
