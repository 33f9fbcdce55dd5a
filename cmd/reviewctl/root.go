package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"wb_reviews/internal/adapters/observability"
	"wb_reviews/internal/shared"
	"wb_reviews/internal/storage/sqlstore"
)

var (
	cfg   shared.Config
	store *sqlstore.Store
)

var rootCmd = &cobra.Command{
	Use:           "reviewctl",
	Short:         "Manage the products watched for new marketplace reviews",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = shared.Load(); err != nil {
			return err
		}
		log.Logger = observability.NewLogger(cfg.AppEnv)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store == nil {
			return nil
		}
		err := store.Close()
		store = nil
		return err
	},
}

func init() {
	rootCmd.AddCommand(addCmd, removeCmd, listCmd, reviewsCmd, checkCmd)
}

// openStore opens the configured store once per invocation.
func openStore(cmd *cobra.Command) (*sqlstore.Store, error) {
	if store != nil {
		return store, nil
	}
	st, err := sqlstore.Open(cmd.Context(), cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	store = st
	return st, nil
}
