// Package protocol defines the wire format between the packd daemon and
// its clients.
//
// Each exchange is a single newline-delimited JSON envelope carrying a
// command name and an optional payload. The daemon replies with an "ok"
// or "error" envelope before closing the connection.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/packforge/packd/internal/plan"
)

// Names a daemon command or response kind.
type Command string

const (
	CmdBuild    Command = "build"
	CmdStatus   Command = "status"
	CmdShutdown Command = "shutdown"

	CmdOK    Command = "ok"
	CmdError Command = "error"
)

// The JSON message exchanged over the daemon socket.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Asks the daemon to run the build pipeline.
type BuildRequest struct {
	Plan      plan.Plan `json:"plan"`       // Build plan, defaults already applied by the client or daemon.
	Root      string    `json:"root"`       // Directory the plan's relative paths resolve against.
	Output    string    `json:"output"`     // Directory receiving the bundle.
	Name      string    `json:"name"`       // Optional name prefix for the build container.
	KeepImage bool      `json:"keep_image"` // Export the finished environment alongside the bundle.
}

// Reports a completed build.
type BuildResult struct {
	Output string   `json:"output"`
	RunID  string   `json:"run_id"`
	Stages []string `json:"stages"`
}

// Reports daemon health.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"`
}

// Carries a failure back to the client.
type ErrorResult struct {
	Message string `json:"message"`
}

// Serializes a command and payload into an envelope.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		env.Payload = raw
	}

	return json.Marshal(env)
}

// Parses an envelope, returning it together with its raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("envelope has no command")
	}
	return &env, env.Payload, nil
}

// Parses a typed payload from its raw form.
func DecodePayload[T any](raw json.RawMessage) (*T, error) {
	var payload T
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &payload, nil
}
