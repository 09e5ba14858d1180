package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/persistorai/recall/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3040"

var (
	apiClient *client.Client
	flagURL   string
	flagKey   string
	flagFmt   string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("recall version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("recall version %s-dev", version)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "recall",
		Short:   "Recall CLI for the personal archive retrieval service",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveConfig()
			var opts []client.Option
			if flagKey != "" {
				opts = append(opts, client.WithAPIKey(flagKey))
			}
			apiClient = client.New(flagURL, opts...)
		},
		SilenceUsage: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "Recall server URL (env: RECALL_URL)")
	root.PersistentFlags().StringVar(&flagKey, "api-key", "", "API key (env: RECALL_API_KEY)")
	root.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")

	initCmd := newInitCmd()
	initCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup

	root.AddCommand(initCmd)
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newRetrieveCmd())
	root.AddCommand(newContextCmd())
	root.AddCommand(newChunkCmd())
	root.AddCommand(newPersonCmd())
	root.AddCommand(newMessageCmd())
	root.AddCommand(newAdminCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
