// Package cli implements cropctl, the operator command line for a running
// CropAgent server.
package cli

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8000"

// options are the global flags shared by every subcommand.
type options struct {
	server  string
	json    bool
	timeout time.Duration
}

func (o *options) client() *Client {
	return NewClient(o.server, o.timeout)
}

// RootCmd returns the cropctl root command with all subcommands attached.
func RootCmd(version string) *cobra.Command {
	opts := &options{}

	server := os.Getenv("CROPAGENT_SERVER")
	if server == "" {
		server = defaultServer
	}

	cmd := &cobra.Command{
		Use:     "cropctl",
		Short:   "cropctl - operator CLI for the CropAgent server",
		Version: version,
		Long: `cropctl runs crop assessments and inspects a running CropAgent server.

The server address defaults to $CROPAGENT_SERVER, then ` + defaultServer + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "CropAgent server base URL")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON instead of a summary")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(askCmd(opts))
	cmd.AddCommand(weatherCmd(opts))
	cmd.AddCommand(soilCmd(opts))
	cmd.AddCommand(statusCmd(opts))
	cmd.AddCommand(historyCmd(opts))
	cmd.AddCommand(statsCmd(opts))

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
