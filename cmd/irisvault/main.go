// Command irisvault maintains a vault database: it applies schema steps,
// verifies the audit chain, creates the first admin and prints tallies.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/BrandonDHaskell/irisvault/internal/config"
	"github.com/BrandonDHaskell/irisvault/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `usage: irisvault <command> [flags]

commands:
  migrate           apply missing schema steps [-dry-run]
  version           print tool and schema versions
  verify            verify the audit chain [-from N] [-to N] [-metrics-file PATH]
  bootstrap-admin   create the first admin credential -username NAME
                    (password from IRISVAULT_ADMIN_PASSWORD or stdin)
  tally             count votes -election ID
`

// errChainBroken makes the process exit with status 2 so scripts can tell a
// tampered ledger from an operational failure.
var errChainBroken = errors.New("audit chain verification failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	logger := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		ServiceName: "irisvault",
		Pretty:      cfg.LogPretty,
	})

	err := run(ctx, cfg, logger, os.Args[1:], os.Stdin, os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errChainBroken):
		logger.Error().Err(err).Msg("verify")
		os.Exit(2)
	default:
		logger.Error().Err(err).Msg("irisvault")
		os.Exit(1)
	}
}

func commandUsage(w io.Writer) { fmt.Fprint(w, usage) }
