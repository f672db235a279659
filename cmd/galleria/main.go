package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"galleria/pkg/logger"
	"galleria/pkg/utils"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "galleria",
	Short: "Self-hosted photo gallery server",
	Long: strings.TrimSpace(`
Galleria stores uploaded photos, reads their EXIF data, resolves GPS
coordinates to place names, suggests tags and serves everything over a JSON API.
    `),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.LoadEnv()
	},
}

func main() {
	if os.Getenv("STARTUP_LOG_ACTIVE") != "false" {
		printSignature()
	}

	if err := rootCmd.Execute(); err != nil {
		logger.LogFatal("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./config.yaml)")
}
