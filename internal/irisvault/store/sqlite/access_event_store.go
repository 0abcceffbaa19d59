package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

const accessEventColumns = `id, person_id, attempt_type, confidence, granted, reason, threshold,
  threshold_version, model_version_id, device, location, observed_at_ms, recorded_at_ms,
  out_of_order, override_of`

func (s *AccessEventStore) InsertAccessEvent(ctx context.Context, ev types.AccessEvent) (int64, error) {
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = ev.RecordedAt
	}

	var threshold, thresholdVersion any
	if ev.Threshold != nil {
		threshold = *ev.Threshold
	}
	if ev.ThresholdVersion != nil {
		thresholdVersion = *ev.ThresholdVersion
	}

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  person_id, attempt_type, confidence, granted, reason, threshold, threshold_version,
  model_version_id, device, location, observed_at_ms, recorded_at_ms, out_of_order, override_of
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			nullPerson(ev.PersonID), ev.AttemptType, ev.Confidence, boolInt(ev.Granted), ev.Reason,
			threshold, thresholdVersion, nullInt64(ev.ModelVersionID), ev.Device, ev.Location,
			ms(ev.ObservedAt), ms(ev.RecordedAt), boolInt(ev.OutOfOrder), nullInt64(ev.OverrideOf),
		)
		if dbpkg.IsForeignKeyViolation(err) {
			return vaulterr.E(vaulterr.NotFound, "sqlite.InsertAccessEvent", err)
		}
		if err != nil {
			return fmt.Errorf("InsertAccessEvent insert: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *AccessEventStore) GetAccessEvent(ctx context.Context, id int64) (types.AccessEvent, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+accessEventColumns+` FROM access_events WHERE id = ?;`, id)
	ev, err := scanAccessEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AccessEvent{}, vaulterr.Newf(vaulterr.NotFound, "sqlite.GetAccessEvent", "access event %d", id)
	}
	if err != nil {
		return types.AccessEvent{}, fmt.Errorf("GetAccessEvent query: %w", err)
	}
	return ev, nil
}

// QueryAccessEvents filters by observed time (inclusive From, exclusive To),
// person and device, ordered by observed time then id.
func (s *AccessEventStore) QueryAccessEvents(ctx context.Context, q types.AccessQuery) ([]types.AccessEvent, error) {
	var (
		where []string
		args  []any
	)
	if !q.From.IsZero() {
		where = append(where, "observed_at_ms >= ?")
		args = append(args, ms(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "observed_at_ms < ?")
		args = append(args, ms(q.To))
	}
	if q.PersonID != nil {
		where = append(where, "person_id = ?")
		args = append(args, int64(*q.PersonID))
	}
	if q.Device != "" {
		where = append(where, "device = ?")
		args = append(args, q.Device)
	}

	query := `SELECT ` + accessEventColumns + ` FROM access_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY observed_at_ms, id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := dbpkg.Conn(ctx, s.db).QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("QueryAccessEvents query: %w", err)
	}
	defer rows.Close()

	var out []types.AccessEvent
	for rows.Next() {
		ev, err := scanAccessEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("QueryAccessEvents scan: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *AccessEventStore) LatestObservedAt(ctx context.Context, device string) (time.Time, bool, error) {
	var latest sql.NullInt64
	err := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT MAX(observed_at_ms) FROM access_events WHERE device = ?;
`, device).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("LatestObservedAt query: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return fromMs(latest.Int64), true, nil
}

func (s *AccessEventStore) LatestGrant(ctx context.Context, personID types.PersonID, since time.Time) (types.AccessEvent, bool, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT `+accessEventColumns+`
FROM access_events
WHERE person_id = ? AND granted = 1 AND observed_at_ms >= ?
ORDER BY observed_at_ms DESC, id DESC
LIMIT 1;
`, int64(personID), ms(since))
	ev, err := scanAccessEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AccessEvent{}, false, nil
	}
	if err != nil {
		return types.AccessEvent{}, false, fmt.Errorf("LatestGrant query: %w", err)
	}
	return ev, true, nil
}

func scanAccessEvent(sc scanner) (types.AccessEvent, error) {
	var (
		ev                     types.AccessEvent
		personID, model        sql.NullInt64
		threshold              sql.NullFloat64
		thresholdVersion       sql.NullInt64
		granted, outOfOrder    int
		observedMs, recordedMs int64
		overrideOf             sql.NullInt64
	)
	err := sc.Scan(&ev.ID, &personID, &ev.AttemptType, &ev.Confidence, &granted, &ev.Reason, &threshold,
		&thresholdVersion, &model, &ev.Device, &ev.Location, &observedMs, &recordedMs,
		&outOfOrder, &overrideOf)
	if err != nil {
		return types.AccessEvent{}, err
	}
	ev.PersonID = personPtr(personID)
	ev.Granted = granted == 1
	if threshold.Valid {
		v := threshold.Float64
		ev.Threshold = &v
	}
	if thresholdVersion.Valid {
		v := int(thresholdVersion.Int64)
		ev.ThresholdVersion = &v
	}
	ev.ModelVersionID = int64Ptr(model)
	ev.ObservedAt = fromMs(observedMs)
	ev.RecordedAt = fromMs(recordedMs)
	ev.OutOfOrder = outOfOrder == 1
	ev.OverrideOf = int64Ptr(overrideOf)
	return ev, nil
}
