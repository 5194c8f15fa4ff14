// Command kshop runs the shop backend and its maintenance tasks.
//
//	kshop serve              # HTTP (+ gRPC health) server with queue workers
//	kshop migrate            # run pending migrations
//	kshop migrate:rollback
//	kshop migrate:status
//	kshop seed               # staff account and demo catalog
//	kshop queue:work         # standalone queue workers
//	kshop queue:retry <id>   # re-dispatch a failed job
//	kshop route:list
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Import migrations and seeders so their init() funcs register them.
	_ "github.com/shashiranjanraj/kashvi-shop/database/migrations"
	_ "github.com/shashiranjanraj/kashvi-shop/database/seeders"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "kshop",
	Short:         "kshop: inventory and order backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeListCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(migrateRollbackCmd)
	rootCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(seedCmd)

	rootCmd.AddCommand(queueWorkCmd)
	rootCmd.AddCommand(queueRetryCmd)
}
