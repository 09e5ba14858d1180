package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/recall/client"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, server readiness, and auth",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			results := runDoctor(ctx, apiClient)
			if !printChecks(results) {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor(ctx context.Context, c *client.Client) []checkResult {
	var results []checkResult

	path, _, err := readConfigFile()
	if err != nil {
		results = append(results, checkResult{Name: "Config file", Detail: path, Hint: "Run: recall init (optional when flags or env are set)"})
	} else {
		results = append(results, checkResult{Name: "Config file", Passed: true, Detail: path})
	}

	health, err := c.Health(ctx)
	if err != nil {
		results = append(results, checkResult{
			Name: "Server reachable", Detail: flagURL,
			Hint: fmt.Sprintf("Is recall running? Error: %v", err),
		})
		return results
	}
	results = append(results, checkResult{Name: "Server reachable", Passed: true, Detail: health.Version})

	results = append(results, checkResult{
		Name:   "Reranker",
		Passed: health.Reranker != "degraded",
		Detail: health.Reranker,
		Hint:   "Results are returned unreranked until the rerank service recovers",
	})

	ready, err := c.Ready(ctx)
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "Ready", Hint: fmt.Sprintf("Check the database and migrations. Error: %v", err)})
	default:
		detail := ready.Status
		if e := ready.Checks["embeddings"]; e != "" {
			detail += ", embeddings " + e
		}
		results = append(results, checkResult{Name: "Ready", Passed: true, Detail: detail})
	}

	if _, err := c.Admin.Stats(ctx); err != nil {
		hint := fmt.Sprintf("Error: %v", err)
		if client.IsRateLimited(err) {
			hint = "Too many failed attempts from this address; wait for the lockout to expire"
		}
		results = append(results, checkResult{Name: "Authentication", Hint: hint})
	} else {
		results = append(results, checkResult{Name: "Authentication", Passed: true, Detail: "valid"})
	}

	return results
}

// printChecks prints results and reports whether all passed.
func printChecks(results []checkResult) bool {
	allPassed := true
	for _, r := range results {
		mark := "ok  "
		if !r.Passed {
			mark = "FAIL"
			allPassed = false
		}
		if r.Detail != "" {
			fmt.Printf("[%s] %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Printf("[%s] %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Printf("       %s\n", r.Hint)
		}
	}
	return allPassed
}
