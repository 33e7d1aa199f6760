package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ubuygold/ledgerpool/internal/config"
	"github.com/ubuygold/ledgerpool/internal/db"
	"github.com/ubuygold/ledgerpool/internal/gateway"
	"github.com/ubuygold/ledgerpool/internal/logger"
	"github.com/ubuygold/ledgerpool/internal/pool"
)

// app is the wiring shared by every subcommand. It is built before a command
// runs and torn down after.
type app struct {
	configPath string
	noValidate bool

	store db.Service
	pool  *pool.Pool
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, _, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Debug)

	store, err := db.NewService(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.store = store

	var opts []pool.Option
	if !a.noValidate {
		opts = append(opts, pool.WithValidators(gateway.NewClients(cfg).Validators()))
	}
	a.pool = pool.New(store, cfg, log, opts...)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "poolctl",
		Short:         "poolctl: manage the provider accounts of a ledgerpool database",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Runnable() || cmd.Name() == "help" {
				return nil
			}
			return a.open(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "Path to the ledgerpool config file")
	rootCmd.PersistentFlags().BoolVar(&a.noValidate, "no-validate", false, "Skip live credential checks")

	rootCmd.AddCommand(newAccountsCmd(a))
	return rootCmd
}
