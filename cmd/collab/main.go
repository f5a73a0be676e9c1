package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/collabkit/engine/internal/collab"
	"codeberg.org/collabkit/engine/internal/config"
	"codeberg.org/collabkit/engine/internal/transport"
	"codeberg.org/collabkit/engine/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:           "collab",
	Short:         "Client for collabkit collaboration sessions",
	Long:          "collab connects to a collabkit coordinator and lets you create, join and watch real-time collaboration sessions.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// builds a connected engine from environment configuration. when no
// credential is set, one is minted through the coordinator REST API. the
// returned shutdown func disposes the engine with a bounded flush
func startEngine(ctx context.Context) (*collab.Engine, func(), error) {
	cfg, err := config.LoadEngineConfig()
	if err != nil {
		return nil, nil, err
	}

	credential := cfg.Credential
	if credential == "" {
		credential, err = tui.NewAPIClient().MintCredential(ctx, cfg.CollaboratorID, cfg.DisplayName)
		if err != nil {
			return nil, nil, fmt.Errorf("mint credential: %w", err)
		}
	}

	connector := transport.New(transport.Config{
		ServerURL:      cfg.ServerURL,
		CollaboratorID: cfg.CollaboratorID,
		DisplayName:    cfg.DisplayName,
		Credential:     credential,
		Backoff: transport.Policy{
			Base:   cfg.ReconnectBase,
			Factor: cfg.ReconnectFactor,
			Cap:    cfg.ReconnectCap,
		},
		FlushTimeout: cfg.FlushTimeout,
	})

	engine := collab.New(collab.Config{
		CollaboratorID: cfg.CollaboratorID,
		DisplayName:    cfg.DisplayName,
		TypingTimeout:  cfg.TypingTimeout,
		ActivityLogCap: cfg.ActivityLogCap,
	}, connector)

	if err := engine.Initialize(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	shutdown := func() {
		disposeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Dispose(disposeCtx) //nolint:errcheck
	}

	return engine, shutdown, nil
}

// joins a session, resolving ids this client has never seen through the
// coordinator's directory lookup
func resolveAndJoin(ctx context.Context, engine *collab.Engine, sessionID string) error {
	err := engine.JoinSession(sessionID, "")
	if errors.Is(err, collab.ErrSessionNotFound) {
		view, lookupErr := tui.NewAPIClient().GetSession(ctx, sessionID)
		if lookupErr != nil {
			return fmt.Errorf("session lookup: %w", lookupErr)
		}

		engine.TrackSession(view.Session)
		err = engine.JoinSession(sessionID, "")
	}

	return err
}

func environment() string {
	env := os.Getenv("COLLAB_ENV")
	if env == "" {
		env = "development"
	}

	return env
}
