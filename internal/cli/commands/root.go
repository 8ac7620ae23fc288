// Copyright 2024 AgentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands implements agentfsctl's Cobra command tree: a thin
// debugging front end over the Public API, not the syscall-conformance
// harness spec.md's Non-goals exclude.
package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	agentfs "github.com/agentfs/agentfs"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info reported by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if ts, err := strconv.ParseInt(date, 10, 64); err == nil {
		return fmt.Sprintf("%s (%s, commit: %s)", version, time.Unix(ts, 0).Format("2006-01-02"), commit)
	}
	return fmt.Sprintf("%s (%s, commit: %s)", version, date, commit)
}

var (
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "agentfsctl",
	Short: "Inspect and exercise an AgentFS database",
	Long:  `agentfsctl is a debugging front end over an AgentFS database: create, seed, and poke at its overlay filesystem directly.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		agentfs.SetupLogging(logLevel, nil)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "agentfs.db", "database file path (or \":memory:\")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, none")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("agentfsctl version {{.Version}}\n")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openExisting opens the database named by --db for commands that expect
// it to already exist.
func openExisting() (*agentfs.FS, error) {
	return agentfs.Open(agentfs.Config{Path: dbPath, Cache: agentfs.DefaultCacheConfig})
}
