package main

import "github.com/spf13/cobra"

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull remote changes and push local changes in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := discoverConfig()
			if err != nil {
				return err
			}
			return newDriver(c).Sync(backgroundCtx())
		},
	}
}
