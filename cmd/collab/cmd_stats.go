package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/collabkit/engine/internal/tui"
)

func init() {
	rootCmd.AddCommand(statsCmd, sessionInfoCmd)
}

const restTimeout = 10 * time.Second

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show coordinator occupancy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
		defer cancel()

		stats, err := tui.NewAPIClient().GetStats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("active sessions: %d\n", stats.ActiveSessions)
		return nil
	},
}

var sessionInfoCmd = &cobra.Command{
	Use:   "info <session-id>",
	Short: "Show a session's roster and resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
		defer cancel()

		view, err := tui.NewAPIClient().GetSession(ctx, args[0])
		if err != nil {
			return err
		}

		s := view.Session
		fmt.Printf("%s (%s)\n", s.Name, s.ID)
		fmt.Printf("creator: %s | active: %t | connected clients: %d\n", s.CreatorID, s.IsActive, view.ClientCount)
		fmt.Printf("resources: %v\n\n", s.FileIDs)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COLLABORATOR\tROLE\tJOINED")
		for _, c := range s.Collaborators {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.UserID, c.Role, c.JoinedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}
