package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

const catReadChunk = 65536

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

func init() {
	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	fs, err := openExisting()
	if err != nil {
		return err
	}
	defer fs.Close()

	ctx := context.Background()
	var offset uint64
	for {
		chunk, err := fs.Pread(ctx, args[0], offset, catReadChunk)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if _, err := os.Stdout.Write(chunk); err != nil {
			return err
		}
		offset += uint64(len(chunk))
		if len(chunk) < catReadChunk {
			return nil
		}
	}
}
