// Package idempotency deduplicates order completions by client-supplied
// key.  The first caller for a key claims it and later callers either
// receive the stored snapshot or wait for the claim to settle.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotClaimed is returned by Finish or Abort when the claim is no longer
// the owner of its key, because it was settled already or because it
// lapsed and another caller took the key over.
var ErrNotClaimed = errors.New("idempotency: key not claimed")

// Claim is one ownership of a key.  Token tells apart successive owners of
// the same key.
type Claim struct {
	Key   string
	Token string
}

// Store is an atomic check-then-claim record of completion results.
type Store interface {
	// Begin returns (snapshot, true) when the key already completed.  It
	// returns a Claim and found=false when the caller now owns the key and
	// must call Finish or Abort with it.  Callers arriving while the key is
	// owned block until the owner settles or ctx ends.
	Begin(ctx context.Context, key string) (claim Claim, snapshot []byte, found bool, err error)
	// Finish stores the snapshot and releases waiters.
	Finish(ctx context.Context, c Claim, snapshot []byte) error
	// Abort drops the claim so that a retry can execute again.
	Abort(ctx context.Context, c Claim) error
	// Purge removes records older than the retention window.
	Purge(ctx context.Context) (int, error)
}

func newToken() string { return uuid.NewString() }

const (
	DefaultRetention = 24 * time.Hour
	defaultClaimTTL  = time.Minute
	defaultPoll      = 50 * time.Millisecond
)
