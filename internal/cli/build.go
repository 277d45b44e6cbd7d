package cli

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/packforge/packd/internal/pipeline"
	"github.com/packforge/packd/internal/plan"
	"github.com/packforge/packd/internal/runtime"
	"github.com/packforge/packd/internal/server"
)

// Represents the 'packd build' command.
type BuildCmd struct {
	Plan      string `short:"p" default:"packd.yaml" type:"path" help:"Path to the build plan file."`
	Output    string `short:"o" default:"dist" help:"Output directory for the bundle." placeholder:"DIR"`
	Name      string `help:"Name prefix for the build container." placeholder:"NAME"`
	KeepImage bool   `help:"Export the finished environment as an OCI archive."`

	ContainerdAddress   string `help:"Containerd socket address." placeholder:"PATH"`
	ContainerdNamespace string `help:"Containerd namespace." placeholder:"NS"`
}

// Executes the build command.
//
// Runs the full pipeline directly against containerd, without going
// through the daemon. Relative paths in the plan resolve against the
// plan file's directory.
func (c *BuildCmd) Run(ctx context.Context) error {
	p, err := plan.Load(c.Plan)
	if err != nil {
		return err
	}

	address := c.ContainerdAddress
	if address == "" {
		address = server.DefaultContainerdAddress
	}

	namespace := c.ContainerdNamespace
	if namespace == "" {
		namespace = server.DefaultContainerdNamespace
	}

	rt, err := runtime.New(address, namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := pipeline.Run(ctx, pipeline.NewContainerdBackend(rt), pipeline.Options{
		Plan:      p,
		Root:      filepath.Dir(c.Plan),
		Output:    c.Output,
		Name:      c.Name,
		KeepImage: c.KeepImage,
	})
	if err != nil {
		return err
	}

	slog.Info("build complete", "run", result.RunID, "output", result.Output)
	return nil
}
