package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"deckpilot/internal/deckstore"
	"deckpilot/internal/dispatch"
	"deckpilot/internal/draft"
	"deckpilot/internal/logger"
	"deckpilot/internal/mode"
	"deckpilot/internal/protocol"
	"deckpilot/internal/reconcile"
	"deckpilot/internal/transcript"
	"deckpilot/internal/tui/render"

	"github.com/spf13/cobra"
)

// maxEventLine bounds one recorded event; slide payloads can be large.
const maxEventLine = 8 << 20

type replayFlags struct {
	deckPath   string
	eventsPath string
	editing    bool
	width      int
}

func newReplayCmd() *cobra.Command {
	rf := &replayFlags{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded agent event stream against a deck file, offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), rf, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&rf.deckPath, "deck", "", "Deck JSON file the events start from")
	cmd.Flags().StringVar(&rf.eventsPath, "events", "", "Recorded events, one JSON envelope per line")
	cmd.Flags().BoolVar(&rf.editing, "edit-mode", false, "Replay with edit mode on, so edits go to drafts")
	cmd.Flags().IntVar(&rf.width, "width", 100, "Wrap width of the printed transcript")
	_ = cmd.MarkFlagRequired("deck")
	_ = cmd.MarkFlagRequired("events")
	return cmd
}

// queuedScheduler holds timer callbacks until drain; replay has no clock to
// wait on.
type queuedScheduler struct {
	mu      sync.Mutex
	pending []func()
}

type queuedTimer struct{}

func (queuedTimer) Stop() bool { return false }

func (s *queuedScheduler) AfterFunc(_ time.Duration, fn func()) transcript.Timer {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
	return queuedTimer{}
}

func (s *queuedScheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		fn()
	}
}

// runReplay feeds every recorded event through the same dispatcher the chat
// uses, then prints the transcript followed by the final deck as JSON.
// Nothing is written back to the deck file.
func runReplay(ctx context.Context, rf *replayFlags, out io.Writer) error {
	src := &deckstore.FileSource{Path: rf.deckPath}
	d, err := src.FetchDeck(ctx, "")
	if err != nil {
		return fmt.Errorf("read deck: %w", err)
	}
	entry := logger.Named("replay").WithField("deck_id", d.ID)

	m := mode.New()
	m.SetEditing(rf.editing)
	store := deckstore.New(deckstore.Options{DeckID: d.ID, Source: src, Log: entry})
	store.Replace(ctx, d, deckstore.UpdateOptions{SkipBackendEcho: true})
	sched := &queuedScheduler{}
	chat := transcript.New(transcript.Options{Deck: store.Snapshot, Scheduler: sched, Log: entry})
	disp := dispatch.New(dispatch.Options{
		DeckID: d.ID,
		Deck:   store,
		Engine: reconcile.New(reconcile.Options{
			Store:  store,
			Drafts: draft.New(),
			Mode:   m,
			Log:    entry,
		}),
		Transcript: chat,
		Mode:       m,
		Log:        entry,
	})

	f, err := os.Open(rf.eventsPath)
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		ev, err := protocol.Decode(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", rf.eventsPath, lineNo, err)
		}
		disp.HandleEvent(ctx, ev)
		sched.drain()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	entry.WithField("events", lineNo).Info("replay finished")

	for _, line := range render.LinesToPlainStrings(render.RenderRows(chat.Rows(), rf.width, nil)) {
		fmt.Fprintln(out, line)
	}
	data, err := json.MarshalIndent(store.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	_, err = fmt.Fprintln(out, string(data))
	return err
}
