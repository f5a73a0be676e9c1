package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeberg.org/collabkit/engine/internal/collab"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Join a session and stream its activity to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine, shutdown, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer shutdown()

		events, cancel := engine.Subscribe()
		defer cancel()

		sessionID := args[0]
		if err := resolveAndJoin(ctx, engine, sessionID); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "watching session %s (ctrl+c to stop)\n", sessionID)

		for {
			select {
			case <-ctx.Done():
				return nil

			case event, ok := <-events:
				if !ok {
					return nil
				}
				if event.SessionID != sessionID {
					continue
				}

				printEvent(event)

				if event.Type == collab.EventSessionEnded {
					return nil
				}
			}
		}
	},
}

func printEvent(event collab.Event) {
	when := event.Timestamp.Format("15:04:05")

	switch event.Type {
	case collab.EventUserJoined:
		fmt.Printf("%s join   %s\n", when, event.ActorID)
	case collab.EventUserLeft:
		fmt.Printf("%s leave  %s\n", when, event.ActorID)
	case collab.EventResourceChanged:
		if event.Resource != nil {
			fmt.Printf("%s change %s %s (%s)\n", when, event.ActorID, event.Resource.ResourceID, event.Resource.ChangeType)
		}
	case collab.EventCursorMoved:
		if event.Cursor != nil {
			fmt.Printf("%s cursor %s %s:%d\n", when, event.ActorID, event.Cursor.ResourceID, event.Cursor.Position)
		}
	case collab.EventTypingIndicator:
		if event.Typing != nil && event.Typing.IsTyping {
			fmt.Printf("%s typing %s in %s\n", when, event.ActorID, event.Typing.ResourceID)
		}
	case collab.EventUserInvited:
		if event.Invite != nil {
			fmt.Printf("%s invite %s -> %s\n", when, event.Invite.InviterID, event.Invite.Email)
		}
	case collab.EventSessionEnded:
		reason := event.Reason
		if reason == "" {
			reason = "session ended"
		}
		fmt.Printf("%s ended  %s\n", when, reason)
	}
}
