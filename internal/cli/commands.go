package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agrisense/cropagent/internal/model"
)

func askCmd(opts *options) *cobra.Command {
	var region, crop, language string

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Run a full crop assessment",
		Long: `Send a free-text question through the full pipeline and print the
prediction, alerts and recommendations.

Examples:
  cropctl ask "rice yield in Punjab"
  cropctl ask "गेहूं की फसल" --language hi --state "Uttar Pradesh"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().Ask(cmd.Context(), model.ChatRequest{
				Query:    strings.Join(args, " "),
				Language: language,
				State:    region,
				Crop:     crop,
			})
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd, res)
			}
			displayRun(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&region, "state", "", "region, overriding any named in the query")
	cmd.Flags().StringVar(&crop, "crop", "", "crop, overriding any named in the query")
	cmd.Flags().StringVarP(&language, "language", "l", "", "response language (en, hi, mr)")

	return cmd
}

func weatherCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "weather <region>",
		Short: "Show current weather and forecast for a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.client().Weather(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd, snap)
			}
			displayWeather(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func soilCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "soil <region> <crop>",
		Short: "Show soil conditions for a crop in a region",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.client().Soil(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd, snap)
			}
			displaySoil(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and component execution counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			health, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			agents, err := c.Agents(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd, map[string]any{"health": health, "agents": agents})
			}
			displayStatus(cmd.OutOrStdout(), health, agents)
			return nil
		},
	}
}

func historyCmd(opts *options) *cobra.Command {
	var region, crop string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			preds, err := opts.client().History(cmd.Context(), region, crop, limit)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd, preds)
			}
			displayHistory(cmd.OutOrStdout(), preds)
			return nil
		},
	}

	cmd.Flags().StringVar(&region, "state", "", "only predictions for this region")
	cmd.Flags().StringVar(&crop, "crop", "", "only predictions for this crop")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum rows to show")

	return cmd
}

func statsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show query statistics and stored collector performance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := opts.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd, stats)
			}
			displayStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}
