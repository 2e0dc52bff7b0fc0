package main

import (
	"bookswap/internal/chaos"
	"bookswap/internal/config"
	"bookswap/internal/server"

	"github.com/spf13/cobra"
)

func newChaosCmd(cfg *config.Config) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Run consistency experiments against the configured database",
		Long: "Seeds throwaway users and books, then fires concurrent proposals and " +
			"confirmations at them while probing the exchange invariants.",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			deps := server.NewDeps(cfg, db)
			engine := chaos.NewEngine()
			chaos.RegisterExperiments(engine, chaos.Target{
				DB:       db,
				Members:  deps.Membership,
				Catalog:  deps.Catalog,
				Inbox:    deps.Notifications,
				Exchange: deps.Exchange,
			}, concurrency)
			return engine.RunAll(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 20, "parallel requests per experiment")
	return cmd
}
