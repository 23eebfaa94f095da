package main

import "github.com/spf13/cobra"

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Apply remote changes to the local directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := discoverConfig()
			if err != nil {
				return err
			}
			return newDriver(c).Pull(backgroundCtx())
		},
	}
}
