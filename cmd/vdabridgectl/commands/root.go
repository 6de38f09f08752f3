package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// api is the admin REST client, initialized in PersistentPreRunE.
	api *apiClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon admin address (host:port) for the REST connection.
	serverAddr string
)

// rootCmd is the top-level cobra command for vdabridgectl.
var rootCmd = newRootCmd()

// newRootCmd builds the full command tree. The interactive shell rebuilds
// the tree for every prompt line, so construction stays side-effect free
// apart from resetting the package-level flag targets to their defaults.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vdabridgectl",
		Short: "CLI client for the vdabridge daemon",
		Long:  "vdabridgectl talks to the vdabridge admin REST API to inspect the daemon and its AGV fleet.",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			api = newAPIClient(serverAddr)

			return nil
		},
		// Silence cobra's built-in usage/error printing so we control it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8088",
		"vdabridge admin address (host:port)")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	cmd.AddCommand(statusCmd())
	cmd.AddCommand(agvCmd())
	cmd.AddCommand(monitorCmd())
	cmd.AddCommand(versionCmd())
	cmd.AddCommand(shellCmd())

	return cmd
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
