// Command booknovactl is the operator CLI for a BookNova deployment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/pkg/config"
	"github.com/noah-isme/booknova-api/pkg/database"
	"github.com/noah-isme/booknova-api/pkg/logger"
)

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) database(ctx context.Context) (*sqlx.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) log() *zap.Logger {
	if a.logger != nil {
		return a.logger
	}
	a.logger = zap.NewNop()
	if cfg, err := a.config(); err == nil {
		if l, err := logger.New(cfg); err == nil {
			a.logger = l
		}
	}
	return a.logger
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "booknovactl",
		Short:         "Operate a BookNova library deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(a), newAdminCmd(a), newLoansCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
