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

type CredentialStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCredentialStore(db *sql.DB, writer *dbpkg.Worker) *CredentialStore {
	return &CredentialStore{db: db, writer: writer}
}

const credentialColumns = `id, username, password_hash, salt, iterations, totp_secret, totp_last_step,
  role, failed_attempts, lock_until_ms, person_id, active, created_at_ms, updated_at_ms, last_login_at_ms`

func (s *CredentialStore) CreateCredential(ctx context.Context, c types.Credential) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	at := ms(c.CreatedAt)

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO credentials(
  username, password_hash, salt, iterations, totp_secret, role,
  failed_attempts, person_id, active, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, 0, ?, 1, ?, ?);
`, c.Username, c.PasswordHash, c.Salt, c.Iterations, nullString(c.TOTPSecret), string(c.Role),
			nullPerson(c.PersonID), at, at)
		if dbpkg.IsUniqueViolation(err) {
			return vaulterr.E(vaulterr.UniquenessViolation, "sqlite.CreateCredential",
				fmt.Errorf("username %q already exists", c.Username))
		}
		if dbpkg.IsForeignKeyViolation(err) {
			return vaulterr.E(vaulterr.NotFound, "sqlite.CreateCredential", err)
		}
		if err != nil {
			return fmt.Errorf("CreateCredential insert: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *CredentialStore) GetCredential(ctx context.Context, id int64) (types.Credential, error) {
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = ?;`, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Credential{}, vaulterr.Newf(vaulterr.NotFound, "sqlite.GetCredential", "credential %d", id)
	}
	if err != nil {
		return types.Credential{}, fmt.Errorf("GetCredential query: %w", err)
	}
	return c, nil
}

func (s *CredentialStore) GetCredentialByUsername(ctx context.Context, username string) (types.Credential, error) {
	username = strings.TrimSpace(username)
	row := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE username = ?;`, username)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Credential{}, vaulterr.Newf(vaulterr.NotFound, "sqlite.GetCredentialByUsername", "username %q", username)
	}
	if err != nil {
		return types.Credential{}, fmt.Errorf("GetCredentialByUsername query: %w", err)
	}
	return c, nil
}

func (s *CredentialStore) ListCredentials(ctx context.Context) ([]types.Credential, error) {
	rows, err := dbpkg.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("ListCredentials query: %w", err)
	}
	defer rows.Close()

	var out []types.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCredentials scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CredentialStore) CountCredentials(ctx context.Context) (int, error) {
	var n int
	err := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials;`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountCredentials: %w", err)
	}
	return n, nil
}

func (s *CredentialStore) RecordLoginFailure(ctx context.Context, id int64, failed int, lockUntil *time.Time, at time.Time) error {
	return s.update(ctx, "RecordLoginFailure", `
UPDATE credentials
SET failed_attempts = ?,
    lock_until_ms   = COALESCE(?, lock_until_ms),
    updated_at_ms   = ?
WHERE id = ?;
`, failed, nullMs(lockUntil), ms(at), id)
}

func (s *CredentialStore) RecordLoginSuccess(ctx context.Context, id int64, totpStep *int64, at time.Time) error {
	return s.update(ctx, "RecordLoginSuccess", `
UPDATE credentials
SET failed_attempts  = 0,
    lock_until_ms    = NULL,
    totp_last_step   = COALESCE(?, totp_last_step),
    last_login_at_ms = ?,
    updated_at_ms    = ?
WHERE id = ?;
`, nullInt64(totpStep), ms(at), ms(at), id)
}

func (s *CredentialStore) SetRole(ctx context.Context, id int64, role types.Role, at time.Time) error {
	return s.update(ctx, "SetRole", `
UPDATE credentials SET role = ?, updated_at_ms = ? WHERE id = ?;
`, string(role), ms(at), id)
}

func (s *CredentialStore) SetActive(ctx context.Context, id int64, active bool, at time.Time) error {
	return s.update(ctx, "SetActive", `
UPDATE credentials SET active = ?, updated_at_ms = ? WHERE id = ?;
`, boolInt(active), ms(at), id)
}

// SetTOTPSecret also resets the replay floor, since steps of the old secret
// mean nothing for the new one.
func (s *CredentialStore) SetTOTPSecret(ctx context.Context, id int64, secret string, at time.Time) error {
	return s.update(ctx, "SetTOTPSecret", `
UPDATE credentials SET totp_secret = ?, totp_last_step = NULL, updated_at_ms = ? WHERE id = ?;
`, nullString(secret), ms(at), id)
}

func (s *CredentialStore) ClearLock(ctx context.Context, id int64, at time.Time) error {
	return s.update(ctx, "ClearLock", `
UPDATE credentials SET failed_attempts = 0, lock_until_ms = NULL, updated_at_ms = ? WHERE id = ?;
`, ms(at), id)
}

func (s *CredentialStore) update(ctx context.Context, name, query string, args ...any) error {
	id := args[len(args)-1]
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s update: %w", name, err)
		}
		return requireRow(res, "sqlite."+name, "credential %v", id)
	})
}

func scanCredential(sc scanner) (types.Credential, error) {
	var (
		c                  types.Credential
		totpSecret         sql.NullString
		totpStep, lockMs   sql.NullInt64
		personID, lastMs   sql.NullInt64
		role               string
		active             int
		createdMs, updated int64
	)
	err := sc.Scan(&c.ID, &c.Username, &c.PasswordHash, &c.Salt, &c.Iterations, &totpSecret, &totpStep,
		&role, &c.FailedAttempts, &lockMs, &personID, &active, &createdMs, &updated, &lastMs)
	if err != nil {
		return types.Credential{}, err
	}
	c.TOTPSecret = totpSecret.String
	c.TOTPLastStep = int64Ptr(totpStep)
	c.Role = types.Role(role)
	c.LockUntil = timePtr(lockMs)
	c.PersonID = personPtr(personID)
	c.Active = active == 1
	c.CreatedAt = fromMs(createdMs)
	c.UpdatedAt = fromMs(updated)
	c.LastLoginAt = timePtr(lastMs)
	return c, nil
}
