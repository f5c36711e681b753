package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/congo-pay/p2p_wallet/internal/config"
	"github.com/congo-pay/p2p_wallet/internal/infra"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/logging"
)

var Version = "dev"

const (
	// operatorID tags administrative actions taken from the command line.
	operatorID = "walletctl"

	conflictBackoff = 20 * time.Millisecond
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "Operator tooling for the p2p wallet ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAccountCmd())
	rootCmd.AddCommand(setBalanceCmd())
	rootCmd.AddCommand(reverseCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

// env is what every database-backed command needs.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	db     *pgxpool.Pool
	store  *ledger.PostgresStore
	engine *ledger.Engine
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName+"-walletctl")
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := ledger.NewPostgresStore(db, cfg.LockTimeout)
	engine := ledger.NewEngine(store,
		ledger.WithLogger(logger),
		ledger.WithTimeout(cfg.MoveTimeout),
		ledger.WithRetries(cfg.ConflictRetries, conflictBackoff),
	)
	return &env{cfg: cfg, logger: logger, db: db, store: store, engine: engine}, nil
}

func (e *env) Close() {
	e.db.Close()
}
