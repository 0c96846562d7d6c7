package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"draftgap/internal/config"
	"draftgap/internal/logger"
	"draftgap/internal/store"
)

// app carries the loaded configuration into every subcommand.
type app struct {
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		logLevel string
		dbDriver string
		dbDSN    string
	)

	root := &cobra.Command{
		Use:           "draftgap",
		Short:         "Ranked lane matchup collector",
		Long:          "Collect ranked solo queue matches from the Riot API and aggregate lane matchup win rates.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("db-driver") {
				cfg.DBDriver = dbDriver
			}
			if flags.Changed("db") {
				cfg.DBDSN = dbDSN
			}
			if err := logger.Init(cfg.LogLevel); err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.Named("cli")
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&dbDriver, "db-driver", "", "store backend: sqlite, libsql or postgres")
	pf.StringVar(&dbDSN, "db", "", fmt.Sprintf("sqlite path or database url (default %s)", store.DefaultSQLitePath))

	root.AddCommand(
		newCollectCmd(a),
		newScheduleCmd(a),
		newFixIDsCmd(a),
		newMatchupsCmd(a),
		newRolesCmd(a),
		newPatchesCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) openStore(ctx context.Context, readOnly bool) (store.Store, error) {
	st, err := store.Open(ctx, a.cfg.StoreOptions(readOnly))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
