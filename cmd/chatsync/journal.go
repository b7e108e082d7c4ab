// ABOUTME: The journal command: page through locally recorded channel events
// ABOUTME: Reads the SQLite journal written by watch when journal.enabled is set

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/journal"
)

func newJournalCmd(a *app) *cobra.Command {
	var (
		event     string
		messageID int64
		since     time.Duration
		limit     int
		cursor    string
		prune     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show locally recorded channel events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.Journal.Enabled {
				return errors.New("journal is disabled; set journal.enabled in the config")
			}
			j, closeJournal, err := a.openJournal()
			if err != nil {
				return err
			}
			defer closeJournal()

			out := cmd.OutOrStdout()
			if prune > 0 {
				n, err := j.Prune(cmd.Context(), time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, dim.Sprintf("pruned %d entries", n))
				return nil
			}

			params := journal.ListParams{
				Event:     event,
				MessageID: messageID,
				Limit:     limit,
				Cursor:    cursor,
			}
			if since > 0 {
				t := time.Now().Add(-since)
				params.Since = &t
			}

			res, err := j.List(cmd.Context(), params)
			if err != nil {
				return err
			}
			for _, e := range res.Entries {
				line := fmt.Sprintf("%s %-16s", dim.Sprint(e.ReceivedAt.Local().Format("2006-01-02 15:04:05.000")), e.Event)
				if e.MessageID != 0 {
					line += fmt.Sprintf(" #%d", e.MessageID)
				}
				if e.Author != "" {
					line += " " + theirs.Sprint(e.Author)
				}
				if len(e.Payload) > 0 {
					line += " " + dim.Sprint(string(e.Payload))
				}
				fmt.Fprintln(out, line)
			}
			if res.HasMore {
				fmt.Fprintln(out, dim.Sprintf("more: --cursor %s", res.NextCursor))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "only this event name")
	cmd.Flags().Int64Var(&messageID, "message", 0, "only events naming this message id")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 1h")
	cmd.Flags().IntVar(&limit, "limit", 50, "entries per page")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete events older than this instead of listing")
	return cmd
}
