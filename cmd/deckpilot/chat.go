package main

import (
	"context"
	"strings"

	"deckpilot/internal/history"
	"deckpilot/internal/tui"

	"github.com/spf13/cobra"
)

const welcomeText = "Hi! Describe the deck you want, or select an element with /select and tell me what to change."

type chatFlags struct {
	resume bool
	prompt string
	style  string
}

func addChatFlags(cmd *cobra.Command, f *chatFlags) {
	cmd.Flags().BoolVar(&f.resume, "resume", false, "Continue the last saved chat of this deck")
	cmd.Flags().StringVarP(&f.prompt, "message", "m", "", "Send this message as soon as the chat opens")
	cmd.Flags().StringVar(&f.style, "style", "", "Markdown style for replies (dark, light, notty; default auto)")
}

func newChatCmd(f *rootFlags, logs queueLogs) *cobra.Command {
	chat := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, f, chat, logs)
		},
	}
	addChatFlags(cmd, chat)
	return cmd
}

func runChat(cmd *cobra.Command, f *rootFlags, chat *chatFlags, logs queueLogs) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{slideID: f.slideID, logs: logs})
	if err != nil {
		return err
	}
	defer a.Close()

	slideID, loadErr := a.load(ctx, f.slideID)
	if !chat.resume || !a.resume() {
		a.chat.AddWelcome(welcomeText)
	}
	if loadErr != nil {
		a.chat.AddSystem("Couldn't load the deck: " + loadErr.Error())
	}
	a.watch(ctx)

	title := strings.TrimSpace(a.store.Snapshot().Title)
	if title == "" {
		title = "DeckPilot"
	}
	var sessions tui.SessionLoader
	if a.sessions != nil {
		sessions = a.sessions
	}
	var prompts tui.PromptLog
	if store, err := history.NewDefault(); err == nil {
		prompts = store
	}
	res, err := tui.Run(tui.Options{
		Gateway:       a.events,
		Transcript:    a.chat,
		Deck:          a.store.Snapshot,
		Mode:          a.mode,
		Sessions:      sessions,
		Prompts:       prompts,
		DeckID:        a.deckID,
		SlideID:       slideID,
		Title:         title,
		MarkdownStyle: chat.style,
		InitialPrompt: chat.prompt,
	})
	a.saveSession(res.ActiveSlide)
	return err
}
