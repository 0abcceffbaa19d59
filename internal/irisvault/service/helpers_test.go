package service_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/irisvault/internal/db/dbtest"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/service"
	sqlitestore "github.com/BrandonDHaskell/irisvault/internal/irisvault/store/sqlite"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/metrics"
)

var (
	t0      = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	testKey = []byte("0123456789abcdef0123456789abcdef")
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	v       *service.Vault
	conn    *sql.DB
	clk     *clock
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, w := dbtest.Open(t)
	clk := &clock{t: t0}
	m := metrics.New(prometheus.NewRegistry())
	v, err := service.New(conn, w, sqlitestore.NewStores(conn, w),
		service.Config{TokenKey: testKey, TOTPIssuer: "irisvault-test"},
		service.WithClock(clk.Now),
		service.WithMetrics(m),
	)
	require.NoError(t, err)

	// Keep password hashing cheap in tests.
	_, err = v.Settings.Set(context.Background(), "test", service.KeyPBKDF2Iterations, "10000")
	require.NoError(t, err)

	return &fixture{v: v, conn: conn, clk: clk, metrics: m}
}

func (f *fixture) enroll(t *testing.T, name string) types.PersonID {
	t.Helper()
	id, err := f.v.Biometrics.Enroll(context.Background(), "op", types.PersonAttributes{Name: name},
		[]byte("template-"+name), 0.92, types.EyeLeft)
	require.NoError(t, err)
	return id
}

func (f *fixture) auditLen(t *testing.T) int {
	t.Helper()
	entries, err := f.v.Audit.List(context.Background(), types.AuditRange{})
	require.NoError(t, err)
	return len(entries)
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.conn.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func (f *fixture) exec(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := f.conn.Exec(query, args...)
	require.NoError(t, err)
}

func pid(id types.PersonID) *types.PersonID { return &id }
