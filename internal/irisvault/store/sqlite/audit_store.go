package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

// AuditStore reads and appends audit_log rows. Chaining is the caller's job;
// the store only persists what it is given.
type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Worker) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

const auditColumns = `seq, ts_ms, actor, action, resource, detail, prev_hash, record_hash`

func (s *AuditStore) InsertAudit(ctx context.Context, e types.AuditEntry) (int64, error) {
	var seq int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO audit_log(ts_ms, actor, action, resource, detail, prev_hash, record_hash)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, ms(e.Timestamp), e.Actor, e.Action, e.Resource, e.Detail, e.PrevHash, e.RecordHash)
		if dbpkg.IsUniqueViolation(err) {
			return vaulterr.E(vaulterr.IntegrityViolation, "sqlite.InsertAudit", err)
		}
		if err != nil {
			return fmt.Errorf("InsertAudit insert: %w", err)
		}
		seq, err = res.LastInsertId()
		return err
	})
	return seq, err
}

func (s *AuditStore) Tail(ctx context.Context) (types.AuditEntry, bool, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log ORDER BY seq DESC LIMIT 1;`)
	return oneAudit(row, "Tail")
}

func (s *AuditStore) GetAudit(ctx context.Context, seq int64) (types.AuditEntry, bool, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log WHERE seq = ?;`, seq)
	return oneAudit(row, "GetAudit")
}

func (s *AuditStore) ListAudit(ctx context.Context, r types.AuditRange) ([]types.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if r.From > 0 {
		where = append(where, "seq >= ?")
		args = append(args, r.From)
	}
	if r.To > 0 {
		where = append(where, "seq <= ?")
		args = append(args, r.To)
	}
	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	rows, err := dbpkg.Conn(ctx, s.db).QueryContext(ctx, query+` ORDER BY seq;`, args...)
	if err != nil {
		return nil, fmt.Errorf("ListAudit query: %w", err)
	}
	defer rows.Close()

	var out []types.AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAudit scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *AuditStore) HighWaterSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT seq FROM sqlite_sequence WHERE name = 'audit_log';`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("HighWaterSeq query: %w", err)
	}
	return seq, nil
}

func oneAudit(row *sql.Row, name string) (types.AuditEntry, bool, error) {
	e, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AuditEntry{}, false, nil
	}
	if err != nil {
		return types.AuditEntry{}, false, fmt.Errorf("%s query: %w", name, err)
	}
	return e, true, nil
}

func scanAudit(sc scanner) (types.AuditEntry, error) {
	var (
		e  types.AuditEntry
		ts int64
	)
	if err := sc.Scan(&e.Seq, &ts, &e.Actor, &e.Action, &e.Resource, &e.Detail, &e.PrevHash, &e.RecordHash); err != nil {
		return types.AuditEntry{}, err
	}
	e.Timestamp = fromMs(ts)
	return e, nil
}
