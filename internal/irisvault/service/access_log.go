package service

import (
	"context"
	"database/sql"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

// AccessLog is the append-only record of every recognition attempt,
// granted or not. Entries are not chained; the audit ledger carries the
// grants.
type AccessLog struct {
	*env
}

// Record appends ev, joining the caller's transaction. An observation older
// than the newest one already logged for the same device is kept and
// flagged out of order.
func (a *AccessLog) Record(ctx context.Context, ev types.AccessEvent) (types.AccessEvent, error) {
	const op = "service.AccessLog.Record"

	if err := types.ValidateConfidence(ev.Confidence); err != nil {
		return types.AccessEvent{}, err
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = a.now()
	}
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = ev.RecordedAt
	}
	if ev.AttemptType == "" {
		ev.AttemptType = types.AttemptIris
	}

	err := a.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		if ev.Device != "" {
			latest, ok, err := a.st.Access.LatestObservedAt(ctx, ev.Device)
			if err != nil {
				return err
			}
			ev.OutOfOrder = ok && ev.ObservedAt.Before(latest)
		}
		id, err := a.st.Access.InsertAccessEvent(ctx, ev)
		if err != nil {
			return err
		}
		ev.ID = id
		return nil
	})
	if err != nil {
		return types.AccessEvent{}, storageErr(op, err)
	}
	if ev.OutOfOrder {
		a.log.Warn().Str("device", ev.Device).Time("observed_at", ev.ObservedAt).Msg("access event out of order")
	}
	return ev, nil
}

// Query returns events ordered by observed time, then id.
func (a *AccessLog) Query(ctx context.Context, q types.AccessQuery) ([]types.AccessEvent, error) {
	out, err := a.st.Access.QueryAccessEvents(ctx, q)
	return out, storageErr("service.AccessLog.Query", err)
}

func (a *AccessLog) Get(ctx context.Context, id int64) (types.AccessEvent, error) {
	ev, err := a.st.Access.GetAccessEvent(ctx, id)
	return ev, storageErr("service.AccessLog.Get", err)
}
