package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"deckpilot/internal/events"
	"deckpilot/internal/protocol"
	"deckpilot/internal/render"
	tuirender "deckpilot/internal/tui/render"

	"github.com/spf13/cobra"
)

type sendFlags struct {
	message string
	attach  []string
	resume  bool
	follow  bool
	wait    time.Duration
	width   int
}

func newSendCmd(f *rootFlags, logs queueLogs) *cobra.Command {
	sf := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message, wait for the reply and print the transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(sf.message) == "" && len(sf.attach) == 0 {
				return errors.New("nothing to send: pass -m or --attach")
			}
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{slideID: f.slideID, logs: logs})
			if err != nil {
				return err
			}
			defer a.Close()
			return runSend(cmd.Context(), a, f.slideID, sf, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&sf.message, "message", "m", "", "Message to send")
	cmd.Flags().StringArrayVar(&sf.attach, "attach", nil, "Upload a file and attach it to the message (repeatable)")
	cmd.Flags().BoolVar(&sf.resume, "resume", false, "Continue the last saved chat of this deck")
	cmd.Flags().BoolVar(&sf.follow, "follow", false, "Print agent activity to stderr while waiting")
	cmd.Flags().DurationVar(&sf.wait, "wait", 2*time.Minute, "How long to wait for the agent to finish")
	cmd.Flags().IntVar(&sf.width, "width", 100, "Wrap width of the printed transcript")
	return cmd
}

func runSend(ctx context.Context, a *app, slideID string, sf *sendFlags, out, progress io.Writer) error {
	slideID, _ = a.load(ctx, slideID)
	if sf.resume {
		a.resume()
	}
	start := a.chat.Len()
	sub := a.events.Subscribe()
	onEvent := func(events.Event) {}
	if sf.follow {
		renderers := render.Default()
		rctx := &render.Context{DeckID: a.deckID, EmitLines: func(lines []string) {
			for _, line := range lines {
				fmt.Fprintln(progress, line)
			}
		}}
		onEvent = func(ev events.Event) { renderers.Handle(rctx, ev) }
	}

	pending := map[string]bool{}
	for _, path := range sf.attach {
		id, err := a.events.SubmitUpload(ctx, a.deckID, path)
		if err != nil {
			return fmt.Errorf("queue upload %s: %w", path, err)
		}
		pending[id] = true
	}
	msgID := ""
	if strings.TrimSpace(sf.message) != "" {
		id, err := a.events.SubmitMessage(ctx, a.deckID, events.SendMessageOperation{Text: sf.message})
		if err != nil {
			return fmt.Errorf("queue message: %w", err)
		}
		msgID = id
		pending[id] = true
	}

	waitErr := waitForReply(ctx, a, sub, pending, msgID, sf.wait, onEvent)

	rows := a.chat.Rows()
	if start > len(rows) {
		start = len(rows)
	}
	for _, line := range tuirender.LinesToPlainStrings(tuirender.RenderRows(rows[start:], sf.width, nil)) {
		fmt.Fprintln(out, line)
	}
	a.saveSession(slideID)
	return waitErr
}

// waitForReply blocks until every queued submission finished and, for the
// session backend, the assistant completed its message and stopped
// generating.
func waitForReply(ctx context.Context, a *app, sub <-chan events.Event, pending map[string]bool, msgID string, wait time.Duration, onEvent func(events.Event)) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	replied := msgID == "" || !a.agent.Configured()
	var failed error
	for len(pending) > 0 || !replied || a.mode.Generating() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out after %s waiting for the agent", wait)
		case ev, ok := <-sub:
			if !ok {
				return failed
			}
			onEvent(ev)
			switch ev.Type {
			case events.EventTaskCompleted:
				if !pending[ev.SubmissionID] {
					continue
				}
				delete(pending, ev.SubmissionID)
				res, _ := ev.Payload.(events.TaskResult)
				if res.Status == "completed" {
					continue
				}
				failed = errors.Join(failed, fmt.Errorf("%s: %s", res.Status, res.Error))
				if ev.SubmissionID == msgID {
					replied = true
				}
			case events.EventAgent:
				if _, ok := ev.Payload.(protocol.MessageComplete); ok {
					replied = true
				}
			}
		}
	}
	return failed
}
