package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rmRecursive bool

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file or empty directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func init() {
	rmCmd.Flags().BoolVarP(&rmRecursive, "dir", "d", false, "path is a directory (rmdir instead of unlink)")
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	fs, err := openExisting()
	if err != nil {
		return err
	}
	defer fs.Close()

	ctx := context.Background()
	if rmRecursive {
		if err := fs.Rmdir(ctx, args[0]); err != nil {
			return err
		}
	} else {
		if err := fs.Remove(ctx, args[0]); err != nil {
			return err
		}
	}
	fmt.Printf("removed %s\n", args[0])
	return nil
}
