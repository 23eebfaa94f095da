package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fileshare-client/fileshare/config"
)

func newRemoteCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "remote",
		Short: "Inspect or change the repository's remote endpoint",
	}

	root.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the repository's remote URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := discoverConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, c.RemoteURL())
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "set <url>",
		Short: "Change the repository's remote URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := discoverConfig()
			if err != nil {
				return err
			}
			domain, repos, directory, err := config.ParseRemoteURL(args[0])
			if err != nil {
				return err
			}
			c.RemoteDomain, c.RemoteRepository, c.RemoteDirectory = domain, repos, directory
			return c.Write()
		},
	})

	return root
}

func newSetEditorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-editor <path>",
		Short: "Set the editor launched for large conflict sets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := discoverConfig()
			if err != nil {
				return err
			}
			c.Editor = args[0]
			return c.Write()
		},
	}
}
