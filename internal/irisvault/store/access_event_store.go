package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

// AccessEventStore persists access decisions as an append-only log.
type AccessEventStore interface {
	InsertAccessEvent(ctx context.Context, ev types.AccessEvent) (int64, error)
	GetAccessEvent(ctx context.Context, id int64) (types.AccessEvent, error)
	QueryAccessEvents(ctx context.Context, q types.AccessQuery) ([]types.AccessEvent, error)

	// LatestObservedAt is the newest observed_at recorded for device.
	LatestObservedAt(ctx context.Context, device string) (time.Time, bool, error)
	// LatestGrant is the newest granted event for the person observed at or
	// after since.
	LatestGrant(ctx context.Context, personID types.PersonID, since time.Time) (types.AccessEvent, bool, error)
}
