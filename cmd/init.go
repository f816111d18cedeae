package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize rvtstudio configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to connect rvtstudio to your catalog backend and generates a .rvtstudio.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
