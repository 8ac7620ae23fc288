package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory's entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}

	fs, err := openExisting()
	if err != nil {
		return err
	}
	defer fs.Close()

	entries, err := fs.Readdir(context.Background(), path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "-"
		if e.IsDir() {
			kind = "d"
		}
		fmt.Printf("%s %8d %s\n", kind, e.Ino, e.Name)
	}
	return nil
}
