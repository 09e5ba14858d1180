package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/persistorai/recall/client"
)

func newChunkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Ingest and inspect archive chunks",
	}
	cmd.AddCommand(chunkGetCmd())
	cmd.AddCommand(chunkUpsertCmd())
	return cmd
}

func chunkGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chunk, err := apiClient.Chunks.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get chunk: %w", err)
			}
			output(chunk, chunk.Text)
			return nil
		},
	}
}

func chunkUpsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upsert <file.json|->",
		Short: "Upsert chunks from a JSON array (or {\"chunks\": [...]}) file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chunks, err := readChunks(args[0])
			if err != nil {
				return err
			}

			res, err := apiClient.Chunks.Upsert(cmd.Context(), chunks)
			if err != nil {
				return fmt.Errorf("upsert chunks: %w", err)
			}
			output(res, fmt.Sprintf("%d", res.Upserted))
			return nil
		},
	}
}

// readChunks reads a chunk batch from path, or stdin when path is "-".
func readChunks(path string) ([]client.UpsertChunkRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // user-supplied input file.
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return parseChunks(data)
}

func parseChunks(data []byte) ([]client.UpsertChunkRequest, error) {
	var list []client.UpsertChunkRequest
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Chunks []client.UpsertChunkRequest `json:"chunks"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse chunks: %w", err)
	}
	if len(wrapped.Chunks) == 0 {
		return nil, fmt.Errorf("parse chunks: no chunks found")
	}
	return wrapped.Chunks, nil
}
