package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanlanch/leadledger/config"
	"github.com/jordanlanch/leadledger/pkg/database"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dbFlags overrides the database settings read from the environment
type dbFlags struct {
	driver string
	url    string
}

func rootCmd() *cobra.Command {
	cfg := config.Load()
	flags := &dbFlags{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the lead assignment ledger",
		Long: `ledgerctl manages the lead assignment database: apply the schema, seed
a development team, check the ownership ledger for inconsistencies and mint
bearer tokens for local testing.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.driver, "driver", cfg.DBDriver, "database driver (postgres or sqlite3)")
	cmd.PersistentFlags().StringVar(&flags.url, "database-url", cfg.DatabaseURL, "database connection URL")

	cmd.AddCommand(migrateCmd(cfg, flags))
	cmd.AddCommand(seedCmd(cfg, flags))
	cmd.AddCommand(verifyCmd(cfg, flags))
	cmd.AddCommand(tokenCmd(cfg, flags))

	return cmd
}

func openDB(cfg *config.Config, flags *dbFlags, migrate bool) (*database.Client, error) {
	return database.Open(database.Options{
		Driver: flags.driver,
		URL:    flags.url,
		Pool:   database.DefaultPoolConfig(),
		SSL: &database.SSLConfig{
			Mode:         cfg.DBSSLMode,
			CertPath:     cfg.DBSSLCertPath,
			KeyPath:      cfg.DBSSLKeyPath,
			RootCertPath: cfg.DBSSLRootCertPath,
		},
		AutoMigrate: migrate,
	})
}
