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

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	agentfs "github.com/agentfs/agentfs"
)

var (
	initSeedDir   string
	initGitignore bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new AgentFS database",
	Long:  `Create a new AgentFS database at --db, optionally seeding its base layer from a host directory.`,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&initSeedDir, "seed", "", "host directory to seed the base layer from")
	initCmd.Flags().BoolVar(&initGitignore, "gitignore", true, "honor .gitignore rules when seeding")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	fs, err := agentfs.Create(agentfs.Config{Path: dbPath, Cache: agentfs.DefaultCacheConfig})
	if err != nil {
		return fmt.Errorf("create %s: %w", dbPath, err)
	}
	defer fs.Close()

	fmt.Printf("Initialized empty AgentFS database at %s\n", dbPath)

	if initSeedDir != "" {
		if err := agentfs.SeedFromDir(fs, initSeedDir, agentfs.SeedOptions{Gitignore: initGitignore}); err != nil {
			return fmt.Errorf("seed from %s: %w", initSeedDir, err)
		}
		fmt.Printf("Seeded base layer from %s\n", initSeedDir)
	}
	return nil
}
