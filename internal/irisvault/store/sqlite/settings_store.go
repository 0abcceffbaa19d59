package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

type SettingsStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewSettingsStore(db *sql.DB, writer *dbpkg.Worker) *SettingsStore {
	return &SettingsStore{db: db, writer: writer}
}

const settingColumns = `id, key, value, version, created_at_ms, created_by`

func (s *SettingsStore) InsertSetting(ctx context.Context, key, value, createdBy string, at time.Time) (types.Setting, error) {
	st := types.Setting{Key: key, Value: value, CreatedAt: at.UTC().Truncate(time.Millisecond), CreatedBy: createdBy}
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version), 0) + 1 FROM system_settings WHERE key = ?;
`, key).Scan(&st.Version); err != nil {
			return fmt.Errorf("InsertSetting next version: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO system_settings(key, value, version, created_at_ms, created_by)
VALUES (?, ?, ?, ?, ?);
`, key, value, st.Version, ms(at), createdBy)
		if err != nil {
			return fmt.Errorf("InsertSetting insert: %w", err)
		}
		st.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return types.Setting{}, err
	}
	return st, nil
}

func (s *SettingsStore) LatestSetting(ctx context.Context, key string) (types.Setting, bool, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT `+settingColumns+` FROM system_settings WHERE key = ? ORDER BY version DESC LIMIT 1;
`, key)
	return oneSetting(row, "LatestSetting")
}

func (s *SettingsStore) SettingVersion(ctx context.Context, key string, version int) (types.Setting, bool, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT `+settingColumns+` FROM system_settings WHERE key = ? AND version = ?;
`, key, version)
	return oneSetting(row, "SettingVersion")
}

// SettingAsOf is the newest version written at or before at.
func (s *SettingsStore) SettingAsOf(ctx context.Context, key string, at time.Time) (types.Setting, bool, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT `+settingColumns+` FROM system_settings
WHERE key = ? AND created_at_ms <= ?
ORDER BY version DESC LIMIT 1;
`, key, ms(at))
	return oneSetting(row, "SettingAsOf")
}

func (s *SettingsStore) SettingHistory(ctx context.Context, key string) ([]types.Setting, error) {
	rows, err := dbpkg.Conn(ctx, s.db).QueryContext(ctx, `
SELECT `+settingColumns+` FROM system_settings WHERE key = ? ORDER BY version;
`, key)
	if err != nil {
		return nil, fmt.Errorf("SettingHistory query: %w", err)
	}
	defer rows.Close()

	var out []types.Setting
	for rows.Next() {
		st, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("SettingHistory scan: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func oneSetting(row *sql.Row, name string) (types.Setting, bool, error) {
	st, err := scanSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Setting{}, false, nil
	}
	if err != nil {
		return types.Setting{}, false, fmt.Errorf("%s query: %w", name, err)
	}
	return st, true, nil
}

func scanSetting(sc scanner) (types.Setting, error) {
	var (
		st types.Setting
		at int64
	)
	if err := sc.Scan(&st.ID, &st.Key, &st.Value, &st.Version, &at, &st.CreatedBy); err != nil {
		return types.Setting{}, err
	}
	st.CreatedAt = fromMs(at)
	return st, nil
}
