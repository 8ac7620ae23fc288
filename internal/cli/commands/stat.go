package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Print an entry's attributes",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	fs, err := openExisting()
	if err != nil {
		return err
	}
	defer fs.Close()

	st, err := fs.Lstat(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("ino:   %d\n", st.Ino)
	fmt.Printf("mode:  %o\n", st.Mode)
	fmt.Printf("uid:   %d\n", st.Uid)
	fmt.Printf("gid:   %d\n", st.Gid)
	fmt.Printf("nlink: %d\n", st.Nlink)
	fmt.Printf("size:  %d\n", st.Size)
	fmt.Printf("atime: %d\n", st.Atime)
	fmt.Printf("mtime: %d\n", st.Mtime)
	fmt.Printf("ctime: %d\n", st.Ctime)
	return nil
}
