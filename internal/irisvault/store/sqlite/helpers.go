// Package sqlite implements the store interfaces on modernc.org/sqlite.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMs(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ms(*t)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMs(v.Int64)
	return &t
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func personPtr(v sql.NullInt64) *types.PersonID {
	if !v.Valid {
		return nil
	}
	id := types.PersonID(v.Int64)
	return &id
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullPerson(p *types.PersonID) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
