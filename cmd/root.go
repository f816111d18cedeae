package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/config"
	"github.com/ziadkadry99/rvt-studio/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "rvtstudio",
	Short: "Manage a hosted Revit family catalog from the command line",
	Long: `rvtstudio manages a Revit family catalog hosted on PocketBase: browse and
bulk-edit families, stage and import folders of .rfa files with their
thumbnails, distribute the ProRVT plugin, and run a local web studio and
MCP server for AI agents.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, string(config.LogText))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFileName, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
