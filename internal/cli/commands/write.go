package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	agentfs "github.com/agentfs/agentfs"
)

var writeOffset uint64

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Write stdin to a file, creating it if necessary",
	Args:  cobra.ExactArgs(1),
	RunE:  runWrite,
}

func init() {
	writeCmd.Flags().Uint64Var(&writeOffset, "offset", 0, "byte offset to write at")
	rootCmd.AddCommand(writeCmd)
}

func runWrite(cmd *cobra.Command, args []string) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	fs, err := openExisting()
	if err != nil {
		return err
	}
	defer fs.Close()

	ctx := context.Background()
	if err := fs.Create(ctx, args[0], 0644); err != nil && !agentfs.IsExists(err) {
		return err
	}
	n, err := fs.Pwrite(ctx, args[0], writeOffset, data)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes to %s\n", n, args[0])
	return nil
}
