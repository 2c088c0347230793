package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bitrix-proxy",
	Short: "Bitrix24 CRM tool proxy",
	Long: `bitrix-proxy exposes a fixed catalogue of named CRM tools over HTTP and MCP,
validates every call locally and forwards it to a Bitrix24 inbound webhook.

Without a subcommand it runs the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of bitrix-proxy",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bitrix-proxy version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, toolsCmd, callCmd, versionCmd)
}
