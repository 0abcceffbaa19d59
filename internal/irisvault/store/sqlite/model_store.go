package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

type ModelStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewModelStore(db *sql.DB, writer *dbpkg.Worker) *ModelStore {
	return &ModelStore{db: db, writer: writer}
}

const modelColumns = `id, name, version, checksum, active, registered_at_ms`

func (s *ModelStore) RegisterModel(ctx context.Context, m types.ModelVersion) (int64, error) {
	if m.RegisteredAt.IsZero() {
		m.RegisteredAt = time.Now().UTC()
	}

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO model_versions(name, version, checksum, active, registered_at_ms)
VALUES (?, ?, ?, 0, ?);
`, m.Name, m.Version, m.Checksum, ms(m.RegisteredAt))
		if dbpkg.IsUniqueViolation(err) {
			return vaulterr.E(vaulterr.UniquenessViolation, "sqlite.RegisterModel",
				fmt.Errorf("model %s@%s already registered", m.Name, m.Version))
		}
		if err != nil {
			return fmt.Errorf("RegisterModel insert: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *ModelStore) GetModel(ctx context.Context, id int64) (types.ModelVersion, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+modelColumns+` FROM model_versions WHERE id = ?;`, id)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ModelVersion{}, vaulterr.Newf(vaulterr.NotFound, "sqlite.GetModel", "model version %d", id)
	}
	if err != nil {
		return types.ModelVersion{}, fmt.Errorf("GetModel query: %w", err)
	}
	return m, nil
}

func (s *ModelStore) ActivateModel(ctx context.Context, id int64) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE model_versions SET active = 0 WHERE active = 1 AND id <> ?;`, id); err != nil {
			return fmt.Errorf("ActivateModel clear: %w", err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE model_versions SET active = 1 WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("ActivateModel set: %w", err)
		}
		return requireRow(res, "sqlite.ActivateModel", "model version %d", id)
	})
}

func (s *ModelStore) ActiveModel(ctx context.Context) (types.ModelVersion, bool, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+modelColumns+` FROM model_versions WHERE active = 1 LIMIT 1;`)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ModelVersion{}, false, nil
	}
	if err != nil {
		return types.ModelVersion{}, false, fmt.Errorf("ActiveModel query: %w", err)
	}
	return m, true, nil
}

func (s *ModelStore) ListModels(ctx context.Context) ([]types.ModelVersion, error) {
	rows, err := dbpkg.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+modelColumns+` FROM model_versions ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("ListModels query: %w", err)
	}
	defer rows.Close()

	var out []types.ModelVersion
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("ListModels scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanModel(sc scanner) (types.ModelVersion, error) {
	var (
		m      types.ModelVersion
		active int
		at     int64
	)
	if err := sc.Scan(&m.ID, &m.Name, &m.Version, &m.Checksum, &active, &at); err != nil {
		return types.ModelVersion{}, err
	}
	m.Active = active == 1
	m.RegisteredAt = fromMs(at)
	return m, nil
}
