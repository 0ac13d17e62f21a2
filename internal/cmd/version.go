package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	Version = "0.1.0"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print Nimbus version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Nimbus v%s\n", Version)
		return nil
	},
}
