package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pending changes between local, baseline and remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := discoverConfig()
			if err != nil {
				return err
			}
			driver := newDriver(c)

			diff, err := driver.Status(backgroundCtx())
			if err != nil {
				return err
			}

			if len(diff.Changes) == 0 && len(diff.Conflicts) == 0 {
				fmt.Fprintln(os.Stdout, "nothing to sync")
				return nil
			}

			for _, ch := range diff.Changes {
				fmt.Fprintf(os.Stdout, "%s %-14s %s\n", ch.Op.Symbol(), ch.Op, ch.Path)
			}
			for _, cf := range diff.Conflicts {
				fmt.Fprintf(os.Stdout, "%s [X] %s : %s\n", cf.Local.Op, cf.Remote.Op, cf.Local.Path)
			}

			if err := driver.OpenConflictsInEditor(diff.Conflicts); err != nil {
				return err
			}
			return nil
		},
	}
}
