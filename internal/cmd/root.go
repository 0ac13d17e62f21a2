package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nimbus",
	Short: "Nimbus is an in-memory emulator for AWS-compatible cloud services.",
}

func Execute() error {
	return rootCmd.Execute()
}
