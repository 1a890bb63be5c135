package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "threadline",
	Short: "Conversation persistence and streaming server",
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
