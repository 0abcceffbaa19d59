package store

import (
	"context"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

type AuditStore interface {
	InsertAudit(ctx context.Context, e types.AuditEntry) (int64, error)
	// Tail is the entry with the highest seq.
	Tail(ctx context.Context) (types.AuditEntry, bool, error)
	GetAudit(ctx context.Context, seq int64) (types.AuditEntry, bool, error)
	ListAudit(ctx context.Context, r types.AuditRange) ([]types.AuditEntry, error)
	// HighWaterSeq is the largest seq ever allocated, even if that row is gone.
	HighWaterSeq(ctx context.Context) (int64, error)
}
