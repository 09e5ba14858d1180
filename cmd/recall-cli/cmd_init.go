package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/recall/client"
)

func newInitCmd() *cobra.Command {
	var initURL, initAPIKey string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up recall CLI configuration",
		Long:  "Interactive setup that tests the connection and writes ~/.recall/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			nonInteractive := initURL != "" || initAPIKey != ""
			if !nonInteractive {
				initURL, initAPIKey = promptSettings(bufio.NewReader(os.Stdin))
			}
			return runInit(initURL, initAPIKey)
		},
	}

	cmd.Flags().StringVar(&initURL, "url", "", "Server URL (non-interactive mode)")
	cmd.Flags().StringVar(&initAPIKey, "api-key", "", "API key (non-interactive mode)")
	return cmd
}

func promptSettings(r *bufio.Reader) (url, apiKey string) {
	fmt.Printf("Server URL [%s]: ", defaultURL)
	line, _ := r.ReadString('\n') //nolint:errcheck // EOF leaves the default.
	url = strings.TrimSpace(line)

	fmt.Print("API key (empty for a loopback server without auth): ")
	line, _ = r.ReadString('\n') //nolint:errcheck // EOF leaves it empty.
	return url, strings.TrimSpace(line)
}

func runInit(url, apiKey string) error {
	if url == "" {
		url = defaultURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var opts []client.Option
	if apiKey != "" {
		opts = append(opts, client.WithAPIKey(apiKey))
	}
	c := client.New(url, opts...)

	health, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	// Health is public; stats proves the key.
	if _, err := c.Admin.Stats(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	path, err := writeConfig(url, apiKey)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Connected to recall %s. Config saved to %s\n", health.Version, path)
	return nil
}
