package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/irisvault/internal/config"
	"github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/service"
	sqlitestore "github.com/BrandonDHaskell/irisvault/internal/irisvault/store/sqlite"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
	"github.com/BrandonDHaskell/irisvault/internal/metrics"
)

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		commandUsage(stdout)
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return runMigrate(ctx, cfg, logger, rest, stdout)
	case "version":
		return runVersion(ctx, cfg, logger, stdout)
	case "verify":
		return runVerify(ctx, cfg, logger, rest, stdout)
	case "bootstrap-admin":
		return runBootstrap(ctx, cfg, logger, rest, stdin, stdout)
	case "tally":
		return runTally(ctx, cfg, logger, rest, stdout)
	case "help", "-h", "--help":
		commandUsage(stdout)
		return nil
	}
	commandUsage(stdout)
	return fmt.Errorf("unknown command %q", cmd)
}

func openDB(ctx context.Context, cfg config.Config, logger zerolog.Logger, skipMigrate bool) (*sql.DB, error) {
	return db.Open(ctx, db.Config{
		Path:        cfg.DBPath,
		Env:         cfg.Env,
		BusyTimeout: cfg.BusyTimeout,
		SkipMigrate: skipMigrate,
		Logger:      logger,
	})
}

// openVault opens and migrates the database and builds the services over it.
// The returned func releases both.
func openVault(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts ...service.Option) (*service.Vault, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	conn, err := openDB(ctx, cfg, logger, false)
	if err != nil {
		return nil, nil, err
	}
	w := db.NewWorker(conn)
	closeAll := func() {
		w.Close()
		_ = conn.Close()
	}

	opts = append([]service.Option{service.WithLogger(logger)}, opts...)
	v, err := service.New(conn, w, sqlitestore.NewStores(conn, w), service.Config{
		TokenKey:   cfg.TokenKey,
		TOTPIssuer: cfg.TOTPIssuer,
	}, opts...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return v, closeAll, nil
}

func runMigrate(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stdout)
	dryRun := fs.Bool("dry-run", false, "list pending steps without applying them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conn, err := openDB(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer conn.Close()

	verb, migrate := "applied", db.Migrate
	if *dryRun {
		verb, migrate = "would apply", db.Pending
	}
	steps, err := migrate(ctx, conn)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Fprintln(stdout, "schema up to date")
		return nil
	}
	for _, st := range steps {
		fmt.Fprintf(stdout, "%s %04d %s\n", verb, st.Version, st.Name)
	}
	return nil
}

func runVersion(ctx context.Context, cfg config.Config, logger zerolog.Logger, stdout io.Writer) error {
	conn, err := openDB(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer conn.Close()

	v, err := db.CurrentVersion(ctx, conn)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "irisvault %s (schema %d)\n", version, v)
	return nil
}

func runVerify(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stdout)
	from := fs.Int64("from", 0, "first seq to verify (0 = start)")
	to := fs.Int64("to", 0, "last seq to verify (0 = tail)")
	metricsFile := fs.String("metrics-file", "", "write verification metrics in Prometheus text format")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	v, closeAll, err := openVault(ctx, cfg, logger, service.WithMetrics(metrics.New(reg)))
	if err != nil {
		return err
	}
	defer closeAll()

	res, verr := v.Audit.VerifyChain(ctx, types.AuditRange{From: *from, To: *to})
	if verr != nil && !errors.Is(verr, vaulterr.IntegrityViolation) {
		return verr
	}
	if err := writeJSON(stdout, res); err != nil {
		return err
	}
	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	if !res.OK() {
		return fmt.Errorf("%w: %d mismatch(es), first at seq %d", errChainBroken, len(res.Mismatches), res.Mismatches[0].Seq)
	}
	return nil
}

func runBootstrap(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("bootstrap-admin", flag.ContinueOnError)
	fs.SetOutput(stdout)
	username := fs.String("username", "admin", "admin username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password := os.Getenv("IRISVAULT_ADMIN_PASSWORD")
	if password == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	v, closeAll, err := openVault(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	cred, err := v.Auth.Bootstrap(ctx, *username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "created admin %q (credential %d)\n", cred.Username, cred.ID)
	return nil
}

func runTally(ctx context.Context, cfg config.Config, logger zerolog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tally", flag.ContinueOnError)
	fs.SetOutput(stdout)
	election := fs.String("election", "", "election id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*election) == "" {
		return errors.New("tally: -election is required")
	}

	v, closeAll, err := openVault(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	t, err := v.Voting.Tally(ctx, *election)
	if err != nil {
		return err
	}
	return writeJSON(stdout, t)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
