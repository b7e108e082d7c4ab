// ABOUTME: One-shot message commands: send, edit, delete and history
// ABOUTME: Talk to the REST API directly without opening the event channel

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/config"
)

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <user> <message...>",
		Short: "Send a direct message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireCredential(); err != nil {
				return err
			}
			body := strings.Join(args[1:], " ")
			if err := a.client.Send(cmd.Context(), args[0], body); err != nil {
				return a.checkAuth(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dim.Sprintf("sent to %s", args[0]))
			return nil
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <message-id> <message...>",
		Short: "Edit one of your messages",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireCredential(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.client.Edit(cmd.Context(), id, strings.Join(args[1:], " ")); err != nil {
				return a.checkAuth(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dim.Sprintf("edited #%d", id))
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <message-id>",
		Short: "Delete one of your messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireCredential(); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.client.Delete(cmd.Context(), id); err != nil {
				return a.checkAuth(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dim.Sprintf("deleted #%d", id))
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "Print one page of conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireCredential(); err != nil {
				return err
			}
			local, err := a.localUser()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = a.cfg.History.PageSize
			}
			msgs, err := a.client.History(cmd.Context(), local, args[0], page, limit)
			if err != nil {
				return a.checkAuth(err)
			}
			renderMessages(cmd.OutOrStdout(), msgs, local)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&limit, "limit", 0, fmt.Sprintf("messages per page (default history.page_size, %d)", config.DefaultPageSize))
	return cmd
}
