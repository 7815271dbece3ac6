package queue

import (
	"bytes"
	"context"

	"github.com/angelmondragon/tableside-sync/pkg/db/models"
	"github.com/angelmondragon/tableside-sync/pkg/enums"
)

// Settled describes what Settle did with the queue entry of an accepted write.
type Settled int

const (
	// SettledRemoved means the entry still held the accepted write and was removed.
	SettledRemoved Settled = iota
	// SettledSuperseded means a newer write replaced the entry while the accepted
	// one was in flight; it stays queued.
	SettledSuperseded
	// SettledOrphaned means the entry was cancelled locally while an accepted
	// create or update was in flight; a delete was queued in its place.
	SettledOrphaned
	// SettledGone means nothing was queued and nothing needed to be.
	SettledGone
)

func (s Settled) String() string {
	switch s {
	case SettledRemoved:
		return "removed"
	case SettledSuperseded:
		return "superseded"
	case SettledOrphaned:
		return "orphaned"
	default:
		return "gone"
	}
}

// SameWrite reports whether other holds the same pending write as e. A failed
// attempt does not change the write.
func (e Entry) SameWrite(other Entry) bool {
	return e.OrderID == other.OrderID &&
		e.Kind == other.Kind &&
		bytes.Equal(e.Snapshot, other.Snapshot)
}

// Current re-reads the entry for sent and reports whether it still holds sent.
func (r *Repository) Current(ctx context.Context, sent Entry) (*Entry, bool, error) {
	current, err := r.Get(ctx, sent.OrderID)
	if err != nil {
		return nil, false, err
	}
	return current, current != nil && current.SameWrite(sent), nil
}

// Settle finishes a write the order service accepted. Callers run it inside the
// transaction that records serverRef, while holding the order's table lock.
func (r *Repository) Settle(ctx context.Context, sent Entry, serverRef string) (Settled, error) {
	current, same, err := r.Current(ctx, sent)
	if err != nil {
		return SettledGone, err
	}
	switch {
	case same:
		return SettledRemoved, r.Remove(ctx, sent.OrderID)
	case current != nil:
		return SettledSuperseded, nil
	case sent.Kind == enums.OperationDelete:
		return SettledGone, nil
	}

	// the entry vanished: either another writer already confirmed it, or the
	// order was discarded before its create was known to have landed
	var local int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("order_id = ?", sent.OrderID).
		Count(&local).Error; err != nil {
		return SettledGone, storageError(err, "check local order")
	}
	if local > 0 {
		return SettledGone, nil
	}
	order, err := sent.Order()
	if err != nil {
		return SettledGone, err
	}
	if serverRef != "" {
		order.ServerRef = serverRef
	}
	if _, err := r.Enqueue(ctx, enums.OperationDelete, order); err != nil {
		return SettledGone, err
	}
	return SettledOrphaned, nil
}
