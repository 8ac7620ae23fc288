package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cachestatsCmd = &cobra.Command{
	Use:   "cachestats",
	Short: "Print path-resolution cache hit/miss/entry counts",
	Args:  cobra.NoArgs,
	RunE:  runCachestats,
}

func init() {
	rootCmd.AddCommand(cachestatsCmd)
}

func runCachestats(cmd *cobra.Command, args []string) error {
	fs, err := openExisting()
	if err != nil {
		return err
	}
	defer fs.Close()

	stats := fs.CacheStats()
	fmt.Printf("hits:    %d\n", stats.Hits)
	fmt.Printf("misses:  %d\n", stats.Misses)
	fmt.Printf("entries: %d\n", stats.Entries)
	fmt.Printf("disabled: %v\n", stats.Disabled)
	return nil
}
