package main

import (
	"github.com/spf13/cobra"
)

// cliOptions holds the persistent flags shared by every subcommand.
type cliOptions struct {
	serverURL string
	apiKey    string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "nwrunnerctl",
		Short:         "Operator console for nwrunner config runs",
		Long:          `nwrunnerctl drives nwrunnerd: create a job, run it, and watch devices apply in real time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://127.0.0.1:8088", "nwrunnerd base URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "X-API-Key header value, if nwrunnerd requires one")

	root.AddCommand(
		newCreateCmd(opts),
		newRunCmd(opts),
		newPauseCmd(opts),
		newResumeCmd(opts),
		newCancelCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
	)

	return root
}

func (o *cliOptions) client() *apiClient {
	return newAPIClient(o.serverURL, o.apiKey)
}
