package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"deckpilot/internal/agent"
	"deckpilot/internal/config"

	"github.com/spf13/cobra"
)

func newPingCmd(f *rootFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured services are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runPing(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for all checks")
	return cmd
}

type endpoint struct {
	name string
	url  string
}

func endpoints(cfg config.Config) []endpoint {
	var out []endpoint
	for _, e := range []endpoint{
		{"agent", cfg.AgentURL},
		{"legacy", cfg.LegacyURL},
		{"deck", cfg.DeckURL},
		{"upload", cfg.UploadURL},
	} {
		if e.url != "" {
			out = append(out, e)
		}
	}
	return out
}

// runPing dials every configured endpoint and reports each one. It fails
// when nothing is configured or any check fails.
func runPing(ctx context.Context, cfg config.Config, out io.Writer) error {
	targets := endpoints(cfg)
	if len(targets) == 0 {
		return errors.New("no endpoints configured: set agent_url or legacy_url")
	}
	var failed error
	for _, e := range targets {
		if err := agent.CheckReachable(ctx, e.url); err != nil {
			fmt.Fprintf(out, "%-7s unreachable: %v\n", e.name, err)
			failed = errors.Join(failed, fmt.Errorf("%s: %w", e.name, err))
			continue
		}
		fmt.Fprintf(out, "%-7s ok: %s\n", e.name, e.url)
	}
	return failed
}
