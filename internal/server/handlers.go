package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/packforge/packd/internal"
	"github.com/packforge/packd/internal/paths"
	"github.com/packforge/packd/internal/pipeline"
	"github.com/packforge/packd/internal/protocol"
)

// Handles a build command.
//
// Receives a build plan from the client and executes the pipeline against
// the container runtime.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	req.Plan.ApplyDefaults()
	if err := req.Plan.Validate(); err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	if req.Output == "" {
		req.Output = defaultOutput(req.Name)
	}

	result, err := pipeline.Run(ctx, pipeline.NewContainerdBackend(s.runtime), pipeline.Options{
		Plan:      &req.Plan,
		Root:      req.Root,
		Output:    req.Output,
		Name:      req.Name,
		KeepImage: req.KeepImage,
	})
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	stages := make([]string, len(result.Stages))
	for i, stage := range result.Stages {
		stages[i] = string(stage)
	}

	s.respond(conn, protocol.CmdOK, &protocol.BuildResult{
		Output: result.Output,
		RunID:  result.RunID,
		Stages: stages,
	})
}

// Returns the output directory for a build request without an explicit
// one, under the daemon's XDG data directory.
func defaultOutput(name string) string {
	if name == "" {
		name = "bundle"
	}
	return filepath.Join(paths.Bundles(), name)
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds := s.builds
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Builds:  builds,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}
