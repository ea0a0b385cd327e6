package cli

import (
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Run history database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openDB()
		if err != nil {
			return err
		}
		defer history.Close()
		cmd.Println("Schema up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all run history and re-apply the schema (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openDB()
		if err != nil {
			return err
		}
		defer history.Close()
		if err := history.Reset(); err != nil {
			return err
		}
		cmd.Println("Database reset.")
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
