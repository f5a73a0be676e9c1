package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"codeberg.org/collabkit/engine/internal/tui"
)

func init() {
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Open the interactive session monitor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, shutdown, err := startEngine(context.Background())
		if err != nil {
			return err
		}
		defer shutdown()

		app := tui.NewApp(engine, tui.NewAPIClient(), environment())
		p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run monitor: %w", err)
		}

		return nil
	},
}
