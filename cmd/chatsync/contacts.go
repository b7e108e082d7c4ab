// ABOUTME: Contact commands: list, requests, accept, reject, add and search
// ABOUTME: Operate on the contact book backed by the REST API

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/contacts"
)

func newContactsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage contacts and contact requests",
	}

	book := func() (*contacts.Book, error) {
		if err := a.requireCredential(); err != nil {
			return nil, err
		}
		return contacts.NewBook(a.client, a.logger), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List accepted contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			refreshErr := b.Refresh(cmd.Context())
			s := b.State()
			if s.ContactsErr != nil {
				return a.checkAuth(s.ContactsErr)
			}
			renderContacts(cmd.OutOrStdout(), s.Contacts)
			if refreshErr != nil {
				a.logger.Debug("pending requests unavailable", "error", s.PendingErr)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "requests",
		Short: "List incoming contact requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			_ = b.Refresh(cmd.Context())
			s := b.State()
			if s.PendingErr != nil {
				return a.checkAuth(s.PendingErr)
			}
			renderRequests(cmd.OutOrStdout(), s.Pending)
			return nil
		},
	})

	cmd.AddCommand(requestAction(a, book, "accept", "Accept a contact request", (*contacts.Book).Accept))
	cmd.AddCommand(requestAction(a, book, "reject", "Reject a contact request", (*contacts.Book).Reject))

	cmd.AddCommand(&cobra.Command{
		Use:   "add <user-id>",
		Short: "Send a contact request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := b.Request(cmd.Context(), id); err != nil {
				return a.checkAuth(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dim.Sprintf("contact request sent to user %d", id))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query...>",
		Short: "Search users by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			users, err := b.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return a.checkAuth(err)
			}
			renderContacts(cmd.OutOrStdout(), users)
			return nil
		},
	})

	return cmd
}

func requestAction(a *app, book func() (*contacts.Book, error), verb, short string, action func(*contacts.Book, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := action(b, cmd.Context(), id); err != nil {
				return a.checkAuth(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dim.Sprintf("request %d %sed", id, verb))
			return nil
		},
	}
}
