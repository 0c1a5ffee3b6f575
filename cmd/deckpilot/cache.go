package main

import (
	"fmt"
	"strings"

	"deckpilot/internal/deckstore"

	"github.com/spf13/cobra"
)

func newCacheCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the offline deck cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear [slide-id...]",
		Short: "Drop cached slides of the deck, or the whole deck without ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.DeckID) == "" {
				return errNoDeck
			}
			if cfg.CachePath == "" {
				return fmt.Errorf("cache_path is not set")
			}
			cache, err := deckstore.OpenCache(cfg.CachePath)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer cache.Close()
			if err := cache.Clear(cmd.Context(), cfg.DeckID, args...); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			if len(args) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "cleared cached deck %s\n", cfg.DeckID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d cached slide(s) of deck %s\n", len(args), cfg.DeckID)
			}
			return nil
		},
	})
	return cmd
}
