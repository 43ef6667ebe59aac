package main

import (
	"fmt"

	dbmigrations "virkum-respond/internal/database"
	"virkum-respond/pkg/migration"

	"github.com/spf13/cobra"
)

func newMigrateCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	migrator := func(cmd *cobra.Command) (*migration.Migrator, error) {
		db, err := env.database(cmd.Context())
		if err != nil {
			return nil, err
		}
		return dbmigrations.NewMigrator(db.Pool), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator(cmd)
				if err != nil {
					return err
				}
				if err := m.Up(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator(cmd)
				if err != nil {
					return err
				}
				if err := m.Steps(cmd.Context(), -1); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rolled back one migration")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := migrator(cmd)
				if err != nil {
					return err
				}
				version, dirty, err := m.Version(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Version %d (dirty: %t)\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}
