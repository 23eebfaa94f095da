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

// Package config persists the per-repository state a working tree needs
// between invocations: the remote endpoint and credentials, and the
// baseline tree a sync compares against.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fileshare-client/fileshare"
)

var (
	MarkerDirSuffix = ".fileshare"
	PathSeparator   = fmt.Sprintf("%c", os.PathSeparator)

	ErrNoRepositoryContext = errors.New("no fileshare repository found; run `fileshare init` or move into a directory under one")
	ErrNoSuchDbKey         = errors.New("no such db key exists")
	ErrNoSuchDbBucket      = errors.New("no such bucket exists")
)

const (
	configFileName = "config.fileshare"
	tmpFileName    = "tmp.fileshare"

	O_RWForAll = 0666
)

// RepositoryConfig is the persisted identity of one working tree: where the
// remote lives, how to authenticate to it, and the saved baseline the last
// sync left behind. Field names mirror spec.md §6.2's wire format exactly;
// RemoteRepository, RemoteDirectory and Editor are percent-encoded on disk
// the same way FileEntry names are (see wireConfig below).
type RepositoryConfig struct {
	RemoteDomain     string
	RemoteRepository string
	RemoteDirectory  string
	AuthToken        string
	AuthTokenExp     int64
	Editor           string
	SavedState       fileshare.Directory

	AbsPath string
}

// wireConfig is the literal on-disk shape: remote_repository,
// remote_directory and editor percent-encoded, saved_state nested as
// fileshare's own wire-format tree (fileshare.Directory.ToWire's shape).
type wireConfig struct {
	RemoteDomain     string          `json:"remote_domain"`
	RemoteRepository string          `json:"remote_repository"`
	RemoteDirectory  string          `json:"remote_directory,omitempty"`
	AuthToken        string          `json:"auth_token"`
	AuthTokenExp     int64           `json:"auth_token_exp,omitempty"`
	Editor           string          `json:"editor,omitempty"`
	SavedState       json.RawMessage `json:"saved_state,omitempty"`
}

func byteify(s string) []byte {
	return []byte(s)
}

func (c *RepositoryConfig) AbsPathOf(relPath string) string {
	return path.Join(c.AbsPath, relPath)
}

// RemoteURL composes the full endpoint transport.New dials: the plain
// domain plus the repos (and optional directory) query parameters from
// spec.md §6.4's URL grammar.
func (c *RepositoryConfig) RemoteURL() string {
	q := url.Values{}
	if c.RemoteRepository != "" {
		q.Set("repos", c.RemoteRepository)
	}
	if c.RemoteDirectory != "" {
		q.Set("directory", c.RemoteDirectory)
	}
	if len(q) == 0 {
		return c.RemoteDomain
	}
	return c.RemoteDomain + "?" + q.Encode()
}

// ParseRemoteURL splits a repository URL of the grammar in spec.md §6.4
// (`<scheme>://<host>/<path>?repos=<name>[&directory=<subpath>]`) into the
// plain domain and the decoded repos/directory query parameters.
func ParseRemoteURL(raw string) (domain, repos, directory string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", err
	}
	q := u.Query()
	repos = q.Get("repos")
	directory = q.Get("directory")
	u.RawQuery = ""
	return u.String(), repos, directory, nil
}

func (c *RepositoryConfig) toWire() (*wireConfig, error) {
	saved, err := c.SavedState.ToWire()
	if err != nil {
		return nil, err
	}
	return &wireConfig{
		RemoteDomain:     c.RemoteDomain,
		RemoteRepository: url.QueryEscape(c.RemoteRepository),
		RemoteDirectory:  url.QueryEscape(c.RemoteDirectory),
		AuthToken:        c.AuthToken,
		AuthTokenExp:     c.AuthTokenExp,
		Editor:           url.QueryEscape(c.Editor),
		SavedState:       saved,
	}, nil
}

func (c *RepositoryConfig) fromWire(w *wireConfig) error {
	repo, err := url.QueryUnescape(w.RemoteRepository)
	if err != nil {
		return err
	}
	dir, err := url.QueryUnescape(w.RemoteDirectory)
	if err != nil {
		return err
	}
	editor, err := url.QueryUnescape(w.Editor)
	if err != nil {
		return err
	}

	saved := fileshare.NewRoot()
	if len(w.SavedState) > 0 {
		saved, err = fileshare.FromWire(w.SavedState)
		if err != nil {
			return err
		}
	}

	c.RemoteDomain = w.RemoteDomain
	c.RemoteRepository = repo
	c.RemoteDirectory = dir
	c.AuthToken = w.AuthToken
	c.AuthTokenExp = w.AuthTokenExp
	c.Editor = editor
	c.SavedState = saved
	return nil
}

// Read loads the persisted config.fileshare file for this repository. A
// leftover tmp.fileshare from a prior crashed Write is removed unconditionally
// first (spec.md §4.6).
func (c *RepositoryConfig) Read() error {
	removeStaleTmp(c.AbsPath)
	data, err := os.ReadFile(configPath(c.AbsPath))
	if err != nil {
		return err
	}
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return c.fromWire(&w)
}

// Write persists the config following the literal protocol of spec.md §4.6:
// serialize to tmp.fileshare in the marker directory, close it, remove any
// existing config.fileshare, then rename tmp.fileshare over it. The baseline
// travels inside the same file as saved_state, so every Write also commits
// the latest baseline snapshot. A failure in the remove-then-rename steps is
// returned to the caller to log. If the remove fails, the old
// config.fileshare is left in place; if the rename fails after a successful
// remove, config.fileshare is gone and the new contents sit in tmp.fileshare.
func (c *RepositoryConfig) Write() error {
	w, err := c.toWire()
	if err != nil {
		return err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return atomicWriteFile(markerPath(c.AbsPath), tmpFileName, configFileName, data)
}

func atomicWriteFile(dir, tmpName, targetName string, data []byte) error {
	tmpPath := path.Join(dir, tmpName)
	targetPath := path.Join(dir, targetName)

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	// Step 2: close.
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Step 3: remove the existing config if present. Absence is fine; any
	// other failure is returned before the rename, leaving the stale
	// config.fileshare in place and usable.
	if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	// Step 4: rename tmp.fileshare over config.fileshare.
	return os.Rename(tmpPath, targetPath)
}

// removeStaleTmp unconditionally removes a leftover tmp.fileshare found at
// startup, recovering from a process that crashed between steps 1 and 4 of
// the last Write (spec.md §4.6).
func removeStaleTmp(absPath string) {
	os.Remove(path.Join(markerPath(absPath), tmpFileName))
}

// Discover walks upward from currentAbsPath looking for a MarkerDirSuffix
// directory, the way `fileshare` locates the repository root from any
// working directory beneath it.
func Discover(currentAbsPath string) (*RepositoryConfig, error) {
	p := currentAbsPath
	for {
		info, err := os.Stat(markerPath(p))
		if err == nil && info.IsDir() {
			c := &RepositoryConfig{AbsPath: p}
			if err := c.Read(); err != nil {
				return nil, err
			}
			return c, nil
		}
		newPath := path.Join(p, "..")
		if p == newPath {
			return nil, ErrNoRepositoryContext
		}
		p = newPath
	}
}

// Initialize creates the marker directory at absPath (if absent) and
// writes a fresh RepositoryConfig, returning firstInit=false if a
// repository already existed there. remoteURL follows spec.md §6.4's
// grammar and is split into RemoteDomain/RemoteRepository/RemoteDirectory.
func Initialize(absPath, remoteURL, authToken string) (pathMarker string, firstInit bool, c *RepositoryConfig, err error) {
	pathMarker = markerPath(absPath)
	sInfo, sErr := os.Stat(pathMarker)
	if sErr != nil {
		if os.IsNotExist(sErr) {
			firstInit = true
		} else {
			err = sErr
			return
		}
	}
	if sInfo != nil && !sInfo.IsDir() {
		err = fmt.Errorf("%s is not a directory", pathMarker)
		return
	}
	if err = os.MkdirAll(pathMarker, 0755); err != nil {
		return
	}

	domain, repos, directory, perr := ParseRemoteURL(remoteURL)
	if perr != nil {
		err = perr
		return
	}

	c = &RepositoryConfig{
		AbsPath:          absPath,
		RemoteDomain:     domain,
		RemoteRepository: repos,
		RemoteDirectory:  directory,
		AuthToken:        authToken,
		SavedState:       fileshare.NewRoot(),
	}
	err = c.Write()
	return
}

// DeInitialize removes the marker directory and everything it holds
// (config, resume cache), after prompter confirms.
func (c *RepositoryConfig) DeInitialize(prompter func(...interface{}) bool) error {
	p := markerPath(c.AbsPath)
	if !prompter("remove: ", p, ". This operation is permanent (Y/N) ") {
		return nil
	}
	return os.RemoveAll(p)
}

func markerPath(absPath string) string {
	return path.Join(absPath, MarkerDirSuffix)
}

func configPath(absPath string) string {
	return path.Join(markerPath(absPath), configFileName)
}

// LeastNonExistantRoot returns the shortest prefix of contextAbsPath that
// does not yet exist on disk (empty if contextAbsPath already exists), used
// by `clone` to know how much of a nested path it still needs to create
// (and therefore clean up on failure).
func LeastNonExistantRoot(contextAbsPath string) string {
	last := ""
	p := contextAbsPath
	for p != "" {
		if info, _ := os.Stat(p); info != nil {
			break
		}
		last = p
		p, _ = filepath.Split(strings.TrimRight(p, PathSeparator))
	}
	return last
}
