// Copyright 2013 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point of the fileshare CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	survey "github.com/AlecAivazis/survey/v2"
	isatty "github.com/mattn/go-isatty"
	"github.com/odeke-em/log"
	prettywords "github.com/odeke-em/pretty-words"
	"github.com/spf13/cobra"

	"github.com/fileshare-client/fileshare"
	"github.com/fileshare-client/fileshare/config"
	"github.com/fileshare-client/fileshare/transport"
)

var logger = log.New(os.Stdin, os.Stdout, os.Stderr)

func main() {
	root := newRootCmd()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		count := 0
		for range c {
			fileshare.SetInterrupted()
			count++
			if count >= 3 {
				// Three consecutive interrupts in one run force a hard
				// exit (spec.md §5); the core's cooperative checks get
				// one chance each, but a user mashing ^C wants out now.
				os.Exit(130)
			}
		}
	}()

	if err := root.Execute(); err != nil {
		logger.LogErrf("%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fileshare",
		Short:         "Synchronize a local directory, a saved baseline and a remote tree",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitCmd(),
		newDeInitCmd(),
		newCloneCmd(),
		newStatusCmd(),
		newPullCmd(),
		newPushCmd(),
		newSyncCmd(),
		newRemoteCmd(),
		newSetEditorCmd(),
		newAboutCmd(),
	)

	return root
}

func newAboutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Describe what fileshare does",
		RunE: func(cmd *cobra.Command, args []string) error {
			printWrapped(os.Stdout, "fileshare keeps a local directory, a saved baseline from the last sync, "+
				"and a remote tree reconciled with one another. `status` reports what changed on each side, "+
				"`pull`/`push` move changes in one direction, and `sync` does both in a single pass, asking "+
				"interactively when a conflict has no safe default.")
			return nil
		},
	}
}

func printWrapped(w *os.File, text string) {
	pr := prettywords.PrettyRubric{Limit: 80, Body: []string{text}}
	for _, line := range pr.Format() {
		fmt.Fprintln(w, line)
	}
}

// discoverConfig locates the repository rooted at or above the current
// working directory.
func discoverConfig() (*config.RepositoryConfig, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Discover(wd)
}

func newRemote(c *config.RepositoryConfig) *transport.Remote {
	return transport.New(c.RemoteURL(), c.AuthToken)
}

func newDriver(c *config.RepositoryConfig) *fileshare.Driver {
	b := fileshare.NewBaseline(c.SavedState, func(d fileshare.Directory) error {
		c.SavedState = d
		return c.Write()
	})

	return &fileshare.Driver{
		LocalRoot:   c.AbsPath,
		Baseline:    b,
		Remote:      newRemote(c),
		Prompt:      ttyPrompter{},
		Log:         logger,
		EditorPath:  c.Editor,
		Resume:      c.OpenResumeCache(),
		Concurrency: runtime.NumCPU(),
	}
}

// ttyPrompter asks the operator how to resolve a conflict on stdin/stdout
// via survey, returning ResolveNeedsUser with a plain error in
// non-interactive contexts instead of blocking forever on a read.
type ttyPrompter struct{}

func (ttyPrompter) ResolveConflict(c fileshare.Conflict) (fileshare.Resolution, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return fileshare.ResolveNeedsUser, fmt.Errorf("conflict on %q requires an interactive terminal", c.Local.Path)
	}

	options := []string{"keep local", "keep remote"}
	answer := ""
	prompt := &survey.Select{
		Message: fmt.Sprintf("conflict on %s (%s vs %s): resolve how?", c.Local.Path, c.Local.Op, c.Remote.Op),
		Options: options,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return fileshare.ResolveNeedsUser, err
	}

	if answer == "keep remote" {
		return fileshare.ResolveAcceptRemote, nil
	}
	return fileshare.ResolveAcceptLocal, nil
}

func absRepoPath(arg string) (string, error) {
	if arg == "" {
		arg = "."
	}
	return filepath.Abs(arg)
}

func backgroundCtx() context.Context {
	return context.Background()
}
