package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "targetwatch",
		Short: "targetwatch - HTTP uptime monitoring engine",
		Long: `targetwatch polls registered URLs on a per-target interval, records every
probe outcome and reports windowed uptime over an authenticated HTTP API.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (defaults to $CONFIG_FILE)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
