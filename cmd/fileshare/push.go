package main

import "github.com/spf13/cobra"

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Apply local changes to the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := discoverConfig()
			if err != nil {
				return err
			}
			return newDriver(c).Push(backgroundCtx())
		},
	}
}
