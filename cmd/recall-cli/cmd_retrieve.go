package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/recall/client"
)

// filterFlags are the retrieval filters shared by retrieve and context.
type filterFlags struct {
	persons []string
	thread  string
	types   []string
	since   string
	until   string
	exclude []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.persons, "person", nil, "Restrict to person ids (repeatable)")
	cmd.Flags().StringVar(&f.thread, "thread", "", "Restrict to a thread id")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "Content types: message|document|transcript|summary")
	cmd.Flags().StringVar(&f.since, "since", "", "Earliest timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.until, "until", "", "Latest timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude-kind", nil, "Chunk kinds to skip, e.g. summary")
}

func (f *filterFlags) build() (client.Filters, error) {
	out := client.Filters{
		PersonIDs:    f.persons,
		ThreadID:     f.thread,
		ContentTypes: f.types,
		ExcludeKinds: f.exclude,
	}

	var err error
	if out.From, err = parseTimeFlag("since", f.since); err != nil {
		return out, err
	}
	if out.To, err = parseTimeFlag("until", f.until); err != nil {
		return out, err
	}
	if out.From != nil && out.To != nil && out.To.Before(*out.From) {
		return out, fmt.Errorf("--until is before --since")
	}
	return out, nil
}

func parseTimeFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("--%s: %q is not RFC3339 or YYYY-MM-DD", name, v)
}

func newRetrieveCmd() *cobra.Command {
	var (
		filters  filterFlags
		limit    int
		minScore float64
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Search the archive",
		Long:  "Hybrid retrieval with reranking and graph expansion. Without a query, filters list matching chunks newest first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.build()
			if err != nil {
				return err
			}
			req := client.RetrieveRequest{Filters: f, Limit: limit, MinScore: minScore, Debug: debug}
			if len(args) == 1 {
				req.Query = args[0]
			}

			resp, err := apiClient.Retrieval.Retrieve(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}
			if flagFmt == "table" {
				printResultTable(resp.Results)
				printFlags(resp.Flags)
				return nil
			}
			output(resp, strings.Join(resultIDs(resp.Results), "\n"))
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop results below this score (applies when reranked)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Include per-source ranks")
	return cmd
}

func newContextCmd() *cobra.Command {
	var (
		filters filterFlags
		budget  int
	)
	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Build a cited context block for a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.build()
			if err != nil {
				return err
			}

			resp, err := apiClient.Retrieval.Context(cmd.Context(), client.RetrieveRequest{
				Query:       args[0],
				Filters:     f,
				TokenBudget: budget,
			})
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			if flagFmt == "table" {
				fmt.Println(resp.Context.Text)
				fmt.Println()
				printCitationTable(resp.Context.Citations)
				if resp.Retrieve != nil {
					printFlags(resp.Retrieve.Flags)
				}
				return nil
			}
			output(resp, resp.Context.Text)
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().IntVar(&budget, "budget", 0, "Token budget (server default when 0)")
	return cmd
}

func resultIDs(results []client.RankedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	return ids
}

func printResultTable(results []client.RankedResult) {
	headers := []string{"#", "SCORE", "ORIGIN", "WHEN", "SENDER", "TEXT"}
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.3f", r.Score),
			r.Origin,
			r.Chunk.Timestamp.Format("2006-01-02 15:04"),
			truncate(r.Chunk.Sender, 20),
			truncate(r.Chunk.Text, 60),
		})
	}
	formatTable(headers, rows)
}

func printCitationTable(cites []client.Citation) {
	headers := []string{"N", "SOURCE", "WHEN", "SENDER", "CHUNK"}
	rows := make([][]string, 0, len(cites))
	for _, c := range cites {
		rows = append(rows, []string{
			fmt.Sprintf("[%d]", c.N),
			c.Source,
			c.Timestamp.Format("2006-01-02 15:04"),
			truncate(c.Sender, 20),
			c.ChunkID,
		})
	}
	formatTable(headers, rows)
}

func printFlags(flags []string) {
	if len(flags) > 0 {
		fmt.Printf("\nflags: %s\n", strings.Join(flags, ", "))
	}
}
