package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the catalog schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", a.cfg.DBPath)
			return nil
		},
	}
}
