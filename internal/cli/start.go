package cli

import (
	"context"
	"log/slog"

	"github.com/packforge/packd/internal/server"
)

// Represents the 'packd start' command.
type StartCmd struct{}

// Executes the start command.
//
// Starts the daemon on a Unix domain socket and blocks until the context
// is cancelled (e.g. via SIGINT or SIGTERM).
func (c *StartCmd) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		SocketPath: RootCmd.Socket,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("packd is running")

	// Stop on SIGINT/SIGTERM; the shutdown command stops the server
	// directly, in which case Wait returns on its own.
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		srv.Stop()
	}()

	srv.Wait()
	return nil
}
