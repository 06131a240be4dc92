package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	RelayVersion, RelayCommit, RelayDate string
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Display version, commit hash, build date, and other build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Admin Relay version: %s\n", RelayVersion)
		fmt.Printf("Commit: %s\n", RelayCommit)
		fmt.Printf("Built: %s\n", RelayDate)
	},
}

func init() {
	rootCommand.AddCommand(versionCommand)
}
