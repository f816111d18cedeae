package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/rvt-studio/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing catalog search and plugin tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := optionalSession()
		if err != nil {
			return err
		}

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		who := "anonymous"
		if s.creds.User != nil {
			who = s.creds.User.Email
		}
		fmt.Fprintf(os.Stderr, "rvtstudio MCP server started on stdio (backend=%s, user=%s)\n", s.cfg.BackendURL, who)

		return mcpserver.NewServer(s.client).Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
