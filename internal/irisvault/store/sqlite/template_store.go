package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

type TemplateStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewTemplateStore(db *sql.DB, writer *dbpkg.Worker) *TemplateStore {
	return &TemplateStore{db: db, writer: writer}
}

func (s *TemplateStore) AddTemplate(ctx context.Context, t types.Template) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO templates(person_id, blob, quality, eye, model_version_id, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, int64(t.PersonID), t.Blob, t.Quality, string(t.Eye), nullInt64(t.ModelVersionID), ms(t.CreatedAt))
		if dbpkg.IsForeignKeyViolation(err) {
			return vaulterr.E(vaulterr.NotFound, "sqlite.AddTemplate", err)
		}
		if err != nil {
			return fmt.Errorf("AddTemplate insert: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *TemplateStore) ListTemplates(ctx context.Context, personID types.PersonID) ([]types.Template, error) {
	rows, err := dbpkg.Conn(ctx, s.db).QueryContext(ctx, `
SELECT id, person_id, blob, quality, eye, model_version_id, created_at_ms
FROM templates
WHERE person_id = ?
ORDER BY id;
`, int64(personID))
	if err != nil {
		return nil, fmt.Errorf("ListTemplates query: %w", err)
	}
	defer rows.Close()

	var out []types.Template
	for rows.Next() {
		var (
			t       types.Template
			pid     int64
			eye     string
			model   sql.NullInt64
			created int64
		)
		if err := rows.Scan(&t.ID, &pid, &t.Blob, &t.Quality, &eye, &model, &created); err != nil {
			return nil, fmt.Errorf("ListTemplates scan: %w", err)
		}
		t.PersonID = types.PersonID(pid)
		t.Eye = types.Eye(eye)
		t.ModelVersionID = int64Ptr(model)
		t.CreatedAt = fromMs(created)
		out = append(out, t)
	}
	return out, rows.Err()
}
