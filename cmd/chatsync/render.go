// ABOUTME: Terminal rendering of messages, conversation snapshots and contacts
// ABOUTME: Colors the local user's messages differently from the counterpart's

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/conversation"
)

var (
	dim      = color.New(color.FgHiBlack)
	mine     = color.New(color.FgCyan, color.Bold)
	theirs   = color.New(color.FgGreen, color.Bold)
	warnText = color.New(color.FgYellow)
)

func formatMessage(m chat.Message, local string) string {
	author := theirs
	if m.Sender.Username == local {
		author = mine
	}

	var b strings.Builder
	b.WriteString(dim.Sprintf("#%-5d %s ", m.ID, formatTime(m.CreatedAt)))
	b.WriteString(author.Sprint(m.Sender.String()))
	b.WriteString(": ")
	b.WriteString(m.Body)
	if !m.UpdatedAt.IsZero() && m.UpdatedAt.After(m.CreatedAt) {
		b.WriteString(dim.Sprint(" (edited)"))
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	t = t.Local()
	if y, m, d := t.Date(); y == time.Now().Year() && m == time.Now().Month() && d == time.Now().Day() {
		return t.Format("15:04")
	}
	return t.Format("Jan 02 15:04")
}

func renderMessages(w io.Writer, msgs []chat.Message, local string) {
	for _, m := range msgs {
		fmt.Fprintln(w, formatMessage(m, local))
	}
}

// renderSnapshot prints the header line followed by every message.
func renderSnapshot(w io.Writer, s conversation.Snapshot) {
	header := fmt.Sprintf("── %s ⇄ %s (%s, %d messages)",
		s.Pair.Local, s.Pair.Counterpart, s.State, len(s.Messages))
	fmt.Fprintln(w, dim.Sprint(header))
	if s.Err != nil {
		fmt.Fprintln(w, warnText.Sprintf("history unavailable: %v", s.Err))
	}
	renderMessages(w, s.Messages, s.Pair.Local.Username)
}

func renderContacts(w io.Writer, contacts []chat.Contact) {
	if len(contacts) == 0 {
		fmt.Fprintln(w, dim.Sprint("no contacts"))
		return
	}
	for _, c := range contacts {
		line := fmt.Sprintf("%-6d %s", c.ID, theirs.Sprint(c.Username))
		if c.Email != "" {
			line += dim.Sprint("  " + c.Email)
		}
		fmt.Fprintln(w, line)
	}
}

func renderRequests(w io.Writer, reqs []chat.PendingRequest) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, dim.Sprint("no pending requests"))
		return
	}
	for _, r := range reqs {
		fmt.Fprintf(w, "request %-6d from %s %s\n", r.ID, theirs.Sprint(r.Sender.Username), dim.Sprintf("(user %d)", r.Sender.ID))
	}
}
