// ABOUTME: Entry point for chatsync, a terminal direct-message client
// ABOUTME: Wires config, credentials, REST client and the shared event channel

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
      _           _
  ___| |__   __ _| |_ ___ _   _ _ __   ___
 / __| '_ \ / _' | __/ __| | | | '_ \ / __|
| (__| | | | (_| | |_\__ \ |_| | | | | (__
 \___|_| |_|\__,_|\__|___/\__, |_| |_|\___|
                          |___/
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Direct-message client with live updates",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default $CHATSYNC_CONFIG or ~/.config/coven-chat/config.yaml)")
	root.PersistentFlags().StringVar(&a.as, "as", "", "local username (default: username claim of the session token)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newWatchCmd(a),
		newSendCmd(a),
		newEditCmd(a),
		newDeleteCmd(a),
		newHistoryCmd(a),
		newContactsCmd(a),
		newTokenCmd(a),
		newJournalCmd(a),
	)
	return root
}
