// Package cli assembles the deskrec command tree the way the teacher's
// cmd package assembles gbox's: a package-level rootCmd, one
// NewXxxCommand per verb, wired together in init.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deskrec",
	Short: "Desktop screen and audio recorder",
	Long:  `deskrec captures the primary display and the system audio loopback into a single Motion-JPEG + PCM AVI file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flag("version").Changed {
			fmt.Println("deskrec version dev")
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the root command, the CLI entrypoint's single call.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")
	rootCmd.AddCommand(NewRecordCommand())
}
