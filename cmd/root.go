package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "v0.3.0"

var rootCmd = &cobra.Command{
	Use:   "factory",
	Short: "factory turns a declarative backlog into tracked issues",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(costsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(cleanupCmd)
}
