package main

import (
	"fmt"
	"os"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/fileshare-client/fileshare/config"
)

func newInitCmd() *cobra.Command {
	var remoteURL, authToken string

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a new repository rooted at path (default: current directory)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			abs, err := absRepoPath(path)
			if err != nil {
				return err
			}

			if remoteURL == "" {
				if err := survey.AskOne(&survey.Input{Message: "Remote URL:"}, &remoteURL); err != nil {
					return err
				}
			}
			if authToken == "" {
				if err := survey.AskOne(&survey.Password{Message: "Auth token:"}, &authToken); err != nil {
					return err
				}
			}

			if err := os.MkdirAll(abs, 0755); err != nil {
				return err
			}

			_, firstInit, _, err := config.Initialize(abs, remoteURL, authToken)
			if err != nil {
				return err
			}
			if !firstInit {
				fmt.Fprintf(os.Stdout, "repository already initialized at %s\n", abs)
				return nil
			}

			fmt.Fprintf(os.Stdout, "initialized empty fileshare repository at %s\n", abs)
			return nil
		},
	}

	cmd.Flags().StringVar(&remoteURL, "remote", "", "remote endpoint URL")
	cmd.Flags().StringVar(&authToken, "token", "", "bearer auth token")
	return cmd
}

// newDeInitCmd removes the repository's credentials, baseline and resume
// cache, grounded on the teacher's own `deinit` verb (src/init.go's
// `Commands.DeInit`, documented as "removes the user's credentials and
// initialized files" in src/help.go's DescDeInit).
func newDeInitCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "deinit",
		Short: "Remove this repository's saved credentials, baseline and resume cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := discoverConfig()
			if err != nil {
				return err
			}

			prompter := func(args ...interface{}) bool {
				if yes {
					return true
				}
				fmt.Fprint(os.Stdout, args...)
				var answer string
				fmt.Fscanln(os.Stdin, &answer)
				return answer == "Y" || answer == "y"
			}

			if err := c.DeInitialize(prompter); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "deinitialized %s\n", c.AbsPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
