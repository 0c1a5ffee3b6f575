package main

import (
	"fmt"
	"strings"

	"deckpilot/internal/config"
	"deckpilot/internal/logger"

	"github.com/spf13/cobra"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	cfgPath   string
	overrides []string
	deckID    string
	deckFile  string
	slideID   string
	logLevel  string
}

// queueLogs are the SQ/EQ log files; empty paths log through the root logger.
type queueLogs struct {
	sq string
	eq string
}

func newRootCmd(logs queueLogs) *cobra.Command {
	f := &rootFlags{}
	chat := &chatFlags{}

	root := &cobra.Command{
		Use:          "deckpilot",
		Short:        "Chat with the deck agent and keep the deck in sync",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, f, chat, logs)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.cfgPath, "config", "", "Path to config file (default ~/.deckpilot/config.toml)")
	pf.StringArrayVarP(&f.overrides, "config-override", "c", nil, "Override a config value key=value (repeatable)")
	pf.StringVar(&f.deckID, "deck", "", "Deck id (default deck_id from config)")
	pf.StringVar(&f.deckFile, "deck-file", "", "Read and write the deck from a local JSON file instead of deck_url")
	pf.StringVar(&f.slideID, "slide", "", "Active slide id (default the first slide)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	addChatFlags(root, chat)

	root.AddCommand(
		newChatCmd(f, logs),
		newSendCmd(f, logs),
		newReplayCmd(),
		newPingCmd(f),
		newCacheCmd(f),
		newLoginCmd(),
		newLogoutCmd(),
	)
	return root
}

// loadConfig reads the config file and applies -c overrides and flags.
func loadConfig(f *rootFlags) (config.Config, error) {
	cfg, err := config.Load(f.cfgPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cfg = config.ApplyKVOverrides(cfg, f.overrides)
	if id := strings.TrimSpace(f.deckID); id != "" {
		cfg.DeckID = id
	}
	if path := strings.TrimSpace(f.deckFile); path != "" {
		cfg.DeckFile = path
	}
	level := cfg.LogLevel
	if strings.TrimSpace(f.logLevel) != "" {
		level = f.logLevel
	}
	if err := logger.SetLevel(level); err != nil {
		log.Warnf("ignoring log level %q: %v", level, err)
	}
	return cfg, nil
}
