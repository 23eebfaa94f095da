package main

import (
	"fmt"
	"os"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/fileshare-client/fileshare"
	"github.com/fileshare-client/fileshare/config"
)

func newCloneCmd() *cobra.Command {
	var remoteURL, authToken string

	cmd := &cobra.Command{
		Use:   "clone <path>",
		Short: "Initialize a repository at path and pull the remote's full tree into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := absRepoPath(args[0])
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

			// Remember the shortest path segment that doesn't exist yet, so a
			// failed clone can remove exactly what this invocation created
			// rather than leaving a half-populated directory behind
			// (grounded on the teacher's own LeastNonExistantRoot, used the
			// same way to scope mountpoint cleanup in its own failure path).
			rollbackRoot := config.LeastNonExistantRoot(abs)

			if err := os.MkdirAll(abs, 0755); err != nil {
				return err
			}

			_, _, c, err := config.Initialize(abs, remoteURL, authToken)
			if err != nil {
				cleanupFailedClone(rollbackRoot)
				return err
			}

			driver := newDriver(c)
			driver.Baseline = fileshare.NewBaseline(fileshare.NewRoot(), func(d fileshare.Directory) error {
				c.SavedState = d
				return c.Write()
			})

			if err := driver.Clone(backgroundCtx()); err != nil {
				cleanupFailedClone(rollbackRoot)
				return err
			}

			fmt.Fprintf(os.Stdout, "cloned into %s\n", abs)
			return nil
		},
	}

	cmd.Flags().StringVar(&remoteURL, "remote", "", "remote endpoint URL")
	cmd.Flags().StringVar(&authToken, "token", "", "bearer auth token")
	return cmd
}

// cleanupFailedClone removes rollbackRoot, the directory tree this clone
// invocation created before failing. An empty rollbackRoot means the target
// directory already existed before this command ran, so there is nothing
// this invocation owns to remove.
func cleanupFailedClone(rollbackRoot string) {
	if rollbackRoot == "" {
		return
	}
	os.RemoveAll(rollbackRoot)
}
