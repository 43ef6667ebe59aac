package main

import (
	"fmt"
	"text/tabwriter"

	"virkum-respond/internal/repository"
	"virkum-respond/internal/seed"

	"github.com/spf13/cobra"
)

func newCompaniesCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "Manage the company catalogue",
	}
	cmd.AddCommand(newCompaniesImportCmd(env), newCompaniesListCmd(env))
	return cmd
}

func newCompaniesImportCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import companies from a YAML seed file, skipping existing names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := seed.Load(args[0])
			if err != nil {
				return err
			}
			db, err := env.database(cmd.Context())
			if err != nil {
				return err
			}
			res, err := repository.NewPgCompanyRepository(db.Pool, env.log).Import(cmd.Context(), file.DomainCompanies())
			if err != nil {
				return fmt.Errorf("import companies: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d companies, skipped %d existing\n", res.Inserted, res.Skipped)
			return nil
		},
	}
}

func newCompaniesListCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List companies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := env.database(cmd.Context())
			if err != nil {
				return err
			}
			companies, err := repository.NewPgCompanyRepository(db.Pool, env.log).List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list companies: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tURL")
			for _, c := range companies {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Name, c.URL)
			}
			return tw.Flush()
		},
	}
}
