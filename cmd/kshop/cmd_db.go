package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/database/seeders"
	"github.com/shashiranjanraj/kashvi-shop/pkg/database"
	"github.com/shashiranjanraj/kashvi-shop/pkg/migration"
)

// dbCommand builds a command that runs fn against a freshly connected
// database.
func dbCommand(use, short string, fn func(cmd *cobra.Command, out io.Writer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Load(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := database.Connect(); err != nil {
				return err
			}
			return fn(cmd, cmd.OutOrStdout())
		},
	}
}

var migrateCmd = dbCommand("migrate", "Apply pending migrations",
	func(cmd *cobra.Command, out io.Writer) error {
		n, err := migration.New(database.DB, out).Run(cmd.Context())
		if err == nil {
			fmt.Fprintf(out, "applied %d migration(s)\n", n)
		}
		return err
	})

var migrateRollbackCmd = dbCommand("migrate:rollback", "Roll back the most recent migration batch",
	func(cmd *cobra.Command, out io.Writer) error {
		n, err := migration.New(database.DB, out).Rollback(cmd.Context())
		if err == nil {
			fmt.Fprintf(out, "rolled back %d migration(s)\n", n)
		}
		return err
	})

var migrateStatusCmd = dbCommand("migrate:status", "List migrations and the batch that applied them",
	func(cmd *cobra.Command, out io.Writer) error {
		statuses, err := migration.New(database.DB, out).Status(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "MIGRATION\tBATCH")
		for _, s := range statuses {
			batch := "pending"
			if s.Ran {
				batch = fmt.Sprint(s.Batch)
			}
			fmt.Fprintf(tw, "%s\t%s\n", s.Name, batch)
		}
		return tw.Flush()
	})

var seedCmd = dbCommand("seed", "Create the staff account and the demo catalog",
	func(cmd *cobra.Command, out io.Writer) error {
		return seeders.RunAll(cmd.Context(), database.DB, out)
	})
