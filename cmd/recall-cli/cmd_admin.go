package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}
	cmd.AddCommand(adminHealthCmd())
	cmd.AddCommand(adminStatsCmd())
	cmd.AddCommand(adminBackfillCmd())
	return cmd
}

func adminHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}
			output(resp, resp.Status)
			return nil
		},
	}
}

func adminStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show archive statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient.Admin.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			if flagFmt == "table" {
				formatTable(
					[]string{"METRIC", "VALUE"},
					[][]string{
						{"Chunks", fmt.Sprintf("%d", resp.Chunks)},
						{"Missing embeddings", fmt.Sprintf("%d", resp.ChunksMissingEmbedding)},
					},
				)
				return nil
			}
			output(resp, fmt.Sprintf("%d", resp.Chunks))
			return nil
		},
	}
}

func adminBackfillCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backfill-embeddings",
		Short: "Queue embedding generation for chunks stored without one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient.Admin.BackfillEmbeddings(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			output(resp, fmt.Sprintf("%d", resp.EmbedQueued))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max chunks to queue (server default when 0)")
	return cmd
}
