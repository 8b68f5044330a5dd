package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"contractdesk.org/internal/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the accounts database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN (defaults to DATABASE_URL)")

	withManager := func(fn func(cmd *cobra.Command, mgr *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return oops.Code("CONFIG_INVALID").Errorf("missing DSN: provide --dsn or DATABASE_URL")
			}
			db, err := sql.Open("pgx", dsn)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("operation", "open database").Wrap(err)
			}
			defer db.Close()
			if err := db.PingContext(cmd.Context()); err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("operation", "ping database").Wrap(err)
			}
			return fn(cmd, migrate.NewManager(db))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				if err := mgr.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				if err := mgr.Down(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
				}
				cmd.Println("Rolled back one migration")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: withManager(func(cmd *cobra.Command, mgr *migrate.Manager) error {
				st, err := mgr.Status()
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "version").Wrap(err)
				}
				cmd.Println(st.String())
				return nil
			}),
		},
	)
	return root
}
