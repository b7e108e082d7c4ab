// ABOUTME: Token commands: set, show and clear the stored session credential
// ABOUTME: set prompts without echo when stdin is a terminal

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/2389/coven-chat/internal/credential"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored session token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [token]",
		Short: "Store a session token (prompted when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				var err error
				if token, err = readToken(os.Stdin, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("empty token")
			}

			if claims, err := credential.Inspect(token); err == nil && claims.Expired(time.Now()) {
				return fmt.Errorf("%w at %s", credential.ErrExpired, claims.ExpiresAt.Format(time.RFC3339))
			}
			if err := credential.Save(a.tokenPath, token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dim.Sprintf("token saved to %s", a.tokenPath))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show who the current token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if err := a.requireCredential(); err != nil {
				return err
			}
			claims, err := a.creds.Claims()
			if err != nil {
				fmt.Fprintln(out, "opaque token (not a JWT)")
				return nil
			}
			fmt.Fprintf(out, "user:    %s\n", claims.Username)
			fmt.Fprintf(out, "subject: %s\n", claims.Subject)
			if claims.ExpiresAt.IsZero() {
				fmt.Fprintln(out, "expires: never")
			} else {
				fmt.Fprintf(out, "expires: %s (in %s)\n",
					claims.ExpiresAt.Local().Format(time.RFC1123),
					time.Until(claims.ExpiresAt).Round(time.Minute))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := credential.Remove(a.tokenPath); err != nil {
				return err
			}
			a.creds.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), dim.Sprint("token cleared"))
			return nil
		},
	})

	return cmd
}

// readToken prompts on a terminal with echo disabled, or reads one line from
// a pipe.
func readToken(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return line, nil
	}

	fmt.Fprint(prompt, "Session token: ")
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return string(data), nil
}
