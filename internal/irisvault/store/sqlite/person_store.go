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

type PersonStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewPersonStore(db *sql.DB, writer *dbpkg.Worker) *PersonStore {
	return &PersonStore{db: db, writer: writer}
}

const personColumns = `id, name, email, phone, active, enrolled_at_ms, updated_at_ms, deactivated_at_ms, last_access_at_ms`

func (s *PersonStore) CreatePerson(ctx context.Context, p types.Person) (types.PersonID, error) {
	if p.EnrolledAt.IsZero() {
		p.EnrolledAt = time.Now().UTC()
	}
	at := ms(p.EnrolledAt)

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO persons(name, email, phone, active, enrolled_at_ms, updated_at_ms)
VALUES (?, ?, ?, 1, ?, ?);
`, p.Name, nullString(p.Email), nullString(p.Phone), at, at)
		if err != nil {
			return fmt.Errorf("CreatePerson insert: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return types.PersonID(id), err
}

func (s *PersonStore) GetPerson(ctx context.Context, id types.PersonID) (types.Person, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = ?;`, int64(id))
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Person{}, vaulterr.Newf(vaulterr.NotFound, "sqlite.GetPerson", "person %d", id)
	}
	if err != nil {
		return types.Person{}, fmt.Errorf("GetPerson query: %w", err)
	}
	return p, nil
}

func (s *PersonStore) ListPersons(ctx context.Context, activeOnly bool) ([]types.Person, error) {
	q := `SELECT ` + personColumns + ` FROM persons`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	rows, err := dbpkg.Conn(ctx, s.db).QueryContext(ctx, q+` ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("ListPersons query: %w", err)
	}
	defer rows.Close()

	var out []types.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPersons scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PersonStore) DeactivatePerson(ctx context.Context, id types.PersonID, at time.Time) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE persons
SET active            = 0,
    deactivated_at_ms = COALESCE(deactivated_at_ms, ?),
    updated_at_ms     = ?
WHERE id = ?;
`, ms(at), ms(at), int64(id))
		if err != nil {
			return fmt.Errorf("DeactivatePerson update: %w", err)
		}
		return requireRow(res, "sqlite.DeactivatePerson", "person %d", id)
	})
}

func (s *PersonStore) TouchLastAccess(ctx context.Context, id types.PersonID, at time.Time) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE persons
SET last_access_at_ms = MAX(COALESCE(last_access_at_ms, 0), ?)
WHERE id = ?;
`, ms(at), int64(id))
		if err != nil {
			return fmt.Errorf("TouchLastAccess update: %w", err)
		}
		return requireRow(res, "sqlite.TouchLastAccess", "person %d", id)
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(sc scanner) (types.Person, error) {
	var (
		p                       types.Person
		id                      int64
		email, phone            sql.NullString
		active                  int
		enrolled, updated       int64
		deactivated, lastAccess sql.NullInt64
	)
	if err := sc.Scan(&id, &p.Name, &email, &phone, &active, &enrolled, &updated, &deactivated, &lastAccess); err != nil {
		return types.Person{}, err
	}
	p.ID = types.PersonID(id)
	p.Email = email.String
	p.Phone = phone.String
	p.Active = active == 1
	p.EnrolledAt = fromMs(enrolled)
	p.UpdatedAt = fromMs(updated)
	p.DeactivatedAt = timePtr(deactivated)
	p.LastAccessAt = timePtr(lastAccess)
	return p, nil
}

func requireRow(res sql.Result, op, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return vaulterr.Newf(vaulterr.NotFound, op, format, args...)
	}
	return nil
}
