// Package main implements kbctl, a CLI for the knowledged HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

// defaultServer matches the server.http_host/http_port defaults.
const defaultServer = "http://127.0.0.1:9191"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flags live on the returned commands
// so every invocation starts from defaults.
func newRootCmd() *cobra.Command {
	var serverURL string

	rootCmd := &cobra.Command{
		Use:   "kbctl",
		Short: "CLI for knowledged HTTP server operations",
		Long: `kbctl is a command-line interface for the knowledged HTTP server.
It ingests documents, runs filtered retrieval, inspects and repairs chunk
metadata, and builds prompt payloads.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "knowledged server URL")

	c := func() *client { return newClient(serverURL) }

	rootCmd.AddCommand(
		newHealthCmd(c),
		newStatsCmd(c),
		newAddCmd(c),
		newIngestCmd(c),
		newRetrieveCmd(c),
		newValuesCmd(c),
		newDocsCmd(c),
		newResetCmd(c),
		newUpdateMetadataCmd(c),
		newRebuildCmd(c),
		newPayloadCmd(c),
	)
	return rootCmd
}
