// ABOUTME: The watch command: a live view of one conversation with inline sending
// ABOUTME: Composes channel manager, reconciler, contact book and optional journal

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/channel"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/contacts"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/journal"
)

const watchHelp = `Type a line to send it. Commands:
  /edit <id> <text>   edit one of your messages
  /delete <id>        delete one of your messages
  /open <user>        switch to another conversation
  /quit               leave`

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <user>",
		Short: "Open a conversation and follow it live",
		Long:  "Open the conversation with <user>, print its history and follow new, edited and deleted messages.\n\n" + watchHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd.Context(), args[0], os.Stdin, cmd.OutOrStdout())
		},
	}
}

func (a *app) runWatch(ctx context.Context, counterpart string, in io.Reader, out io.Writer) error {
	if err := a.requireCredential(); err != nil {
		return err
	}
	local, err := a.localUser()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager, err := a.newManager()
	if err != nil {
		return err
	}
	a.bindSession(ctx, manager)

	j, closeJournal, err := a.openJournal()
	if err != nil {
		return err
	}
	defer closeJournal()
	if j != nil {
		detach := journal.Attach(j, manager, journal.Recorded, a.logger)
		defer detach()
	}

	for _, name := range channel.HealthEvents {
		manager.Subscribe(name, func(payload json.RawMessage) {
			printHealth(out, name, payload)
		})
	}

	book := contacts.NewBook(a.client, a.logger)
	book.Watch(ctx, manager)

	r := conversation.NewReconciler(a.client, manager, conversation.Options{
		PageSize:   a.cfg.History.PageSize,
		MaxPending: a.cfg.History.MaxPending,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
	defer r.Close()

	handle, err := manager.Acquire()
	if err != nil {
		return err
	}
	defer manager.Release()

	a.serveMetrics(ctx)
	go a.pollTokenFile(ctx)

	if err := book.Refresh(ctx); err != nil {
		a.logger.Warn("contacts unavailable", "error", a.checkAuth(err))
	} else if _, ok := book.Find(counterpart); !ok {
		fmt.Fprintln(out, warnText.Sprintf("%s is not in your contacts; messages may be refused", counterpart))
	}

	prev := a.openConversation(ctx, r, out, local, counterpart)

	lines := make(chan string)
	go readLines(ctx, in, lines)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-handle.Done():
			fmt.Fprintln(out, warnText.Sprint("session ended"))
			return nil

		case <-r.Updates():
			snap := r.Snapshot()
			for _, line := range diffMessages(prev, snap.Messages, local) {
				fmt.Fprintln(out, line)
			}
			prev = snap.Messages

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, next := a.handleInput(ctx, r, out, local, line)
			if quit {
				return nil
			}
			if next != nil {
				prev = next
			}
		}
	}
}

// openConversation opens the conversation and prints its snapshot. A failed
// history fetch still leaves a live, empty view.
func (a *app) openConversation(ctx context.Context, r *conversation.Reconciler, out io.Writer, local, counterpart string) []chat.Message {
	if err := r.Open(ctx, chat.NewPair(local, counterpart)); err != nil {
		a.logger.Warn("opening conversation", "counterpart", counterpart, "error", a.checkAuth(err))
	}
	snap := r.Snapshot()
	renderSnapshot(out, snap)
	return snap.Messages
}

// handleInput runs one line typed by the user. It returns the new message
// baseline when the conversation was switched.
func (a *app) handleInput(ctx context.Context, r *conversation.Reconciler, out io.Writer, local, line string) (quit bool, baseline []chat.Message) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	var err error
	switch cmd, rest, _ := strings.Cut(line, " "); cmd {
	case "/quit", "/q":
		return true, nil
	case "/help":
		fmt.Fprintln(out, watchHelp)
	case "/edit":
		idStr, body, _ := strings.Cut(strings.TrimSpace(rest), " ")
		var id int64
		if id, err = parseID(idStr); err == nil {
			if strings.TrimSpace(body) == "" {
				err = fmt.Errorf("usage: /edit <id> <text>")
			} else {
				err = r.Edit(ctx, id, body)
			}
		}
	case "/delete":
		var id int64
		if id, err = parseID(strings.TrimSpace(rest)); err == nil {
			err = r.Delete(ctx, id)
		}
	case "/open":
		counterpart := strings.TrimSpace(rest)
		if counterpart == "" {
			err = fmt.Errorf("usage: /open <user>")
			break
		}
		return false, a.openConversation(ctx, r, out, local, counterpart)
	default:
		// The server echoes sent messages back over the channel.
		err = r.Send(ctx, line)
	}

	if err != nil {
		fmt.Fprintln(out, warnText.Sprintf("! %v", a.checkAuth(err)))
	}
	return false, nil
}

func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

func printHealth(out io.Writer, event string, payload json.RawMessage) {
	var p channel.HealthPayload
	_ = json.Unmarshal(payload, &p)

	switch event {
	case chat.EventConnect:
		fmt.Fprintln(out, dim.Sprint("● connected"))
	case chat.EventDisconnect:
		fmt.Fprintln(out, warnText.Sprintf("○ disconnected (%s), reconnecting", p.Reason))
	case chat.EventConnectError:
		fmt.Fprintln(out, warnText.Sprintf("○ connect failed: %s", p.Message))
	}
}

// diffMessages describes how cur differs from prev, one line per change.
func diffMessages(prev, cur []chat.Message, local string) []string {
	before := make(map[int64]chat.Message, len(prev))
	for _, m := range prev {
		before[m.ID] = m
	}

	var out []string
	seen := make(map[int64]bool, len(cur))
	for _, m := range cur {
		seen[m.ID] = true
		old, existed := before[m.ID]
		switch {
		case !existed:
			out = append(out, formatMessage(m, local))
		case old.Body != m.Body:
			out = append(out, formatMessage(m, local))
		}
	}
	for _, m := range prev {
		if !seen[m.ID] {
			out = append(out, dim.Sprintf("#%-5d deleted", m.ID))
		}
	}
	return out
}
