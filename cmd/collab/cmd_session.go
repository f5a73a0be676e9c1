package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/collabkit/engine/internal/collab"
)

func init() {
	rootCmd.AddCommand(createCmd, inviteCmd)
}

// how long create waits for the coordinator to reject before reporting
// success. acceptance is silent, so no news is good news
const rejectionWindow = 3 * time.Second

var createCmd = &cobra.Command{
	Use:   "create <name> <resource...>",
	Short: "Create a collaboration session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, shutdown, err := startEngine(context.Background())
		if err != nil {
			return err
		}
		defer shutdown()

		events, cancel := engine.Subscribe()
		defer cancel()

		session, err := engine.CreateSession(args[0], args[1:], collab.SessionDocumentEditing, "", nil)
		if err != nil {
			return err
		}

		deadline := time.After(rejectionWindow)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return fmt.Errorf("connection closed before the session settled")
				}
				if event.Type == collab.EventSessionEnded && event.SessionID == session.ID {
					return fmt.Errorf("session rejected: %s", event.Reason)
				}

			case <-deadline:
				fmt.Printf("session created: %s\n", session.ID)
				return nil
			}
		}
	},
}

var inviteCmd = &cobra.Command{
	Use:   "invite <session-id> <email>",
	Short: "Invite a collaborator to a session by email",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, shutdown, err := startEngine(context.Background())
		if err != nil {
			return err
		}
		defer shutdown()

		if err := resolveAndJoin(context.Background(), engine, args[0]); err != nil {
			return fmt.Errorf("attach to session: %w", err)
		}

		if err := engine.InviteCollaborator(args[0], args[1], ""); err != nil {
			return err
		}

		fmt.Printf("invited %s to session %s\n", args[1], args[0])
		return nil
	},
}
