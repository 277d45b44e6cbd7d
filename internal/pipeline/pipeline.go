package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/packforge/packd/internal/paths"
	"github.com/packforge/packd/internal/plan"
	"github.com/packforge/packd/internal/runtime"
)

// Materializes build environments.
//
// The production implementation is backed by containerd via
// [NewContainerdBackend]; tests substitute fakes.
type Backend interface {

	// Starts a build container from the toolchain archive at path.
	Start(ctx context.Context, path, id, platform string) (Container, error)
}

// A build container the pipeline executes stages against.
type Container interface {
	Exec(ctx context.Context, command string, env []string, workdir string) (*runtime.ExecResult, error)
	MkdirAll(ctx context.Context, path string) error
	CopyTo(ctx context.Context, r io.Reader, destDir string) error
	CopyFrom(ctx context.Context, w io.Writer, path string) error
	Stop(ctx context.Context) error
	Export(ctx context.Context, output string) error
	Destroy(ctx context.Context)
}

// Controls a pipeline run.
type Options struct {
	Plan      *plan.Plan // Build plan to execute.
	Root      string     // Directory the plan's relative paths resolve against.
	Output    string     // Directory receiving the finished bundle.
	Name      string     // Name prefix for the build container ID. Defaults to "packd".
	Platform  string     // OCI platform of the environment. Defaults to the host.
	KeepImage bool       // Export the finished environment as an OCI archive.
}

// Returned after a successful pipeline run.
type Result struct {
	Output string  // Directory containing the bundle (.wasm plus loader glue).
	RunID  string  // Unique identifier of this run.
	Stages []Stage // Stages completed, in execution order.
}

// A single crate-to-bundle build.
//
// Stages are exposed as individual methods so a caller can drive them one
// at a time; [Run] executes the full fixed sequence. Each stage verifies
// that its predecessor completed and fails fast otherwise. A Pipeline is
// single-use: it owns one Environment for one run.
type Pipeline struct {
	backend  Backend
	plan     *plan.Plan
	root     string
	output   string
	name     string
	platform string
	keep     bool
	runID    string
	env      *Environment
}

// Creates a pipeline for one run of the given plan.
func New(backend Backend, opts Options) *Pipeline {
	name := opts.Name
	if name == "" {
		name = "packd"
	}

	platform := opts.Platform
	if platform == "" {
		platform = runtime.DefaultPlatform()
	}

	return &Pipeline{
		backend:  backend,
		plan:     opts.Plan,
		root:     opts.Root,
		output:   opts.Output,
		name:     name,
		platform: platform,
		keep:     opts.KeepImage,
		runID:    uuid.NewString(),
	}
}

// Executes the full stage sequence and collects the bundle.
//
// Stages run strictly in order; the first failure halts the run and is
// returned wrapped in that stage's sentinel with the failing diagnostic
// intact. No bundle is published on failure. The environment is destroyed
// when the run ends, success or not.
func Run(ctx context.Context, backend Backend, opts Options) (*Result, error) {
	p := New(backend, opts)

	slog.Info("executing build pipeline",
		"run", p.runID,
		"image", p.plan.BaseImage,
		"target", p.plan.Target,
		"tool", p.plan.Tool,
		"platform", p.plan.Platform,
	)

	if err := os.MkdirAll(p.output, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	defer p.destroy(ctx)

	stages := []func(context.Context) error{
		p.MaterializeEnvironment,
		p.PlaceSource,
		p.InstallSystemDependency,
		p.AddCompilationTarget,
		p.InstallPackagingTool,
		p.InvokeBuild,
	}

	for _, stage := range stages {
		if err := stage(ctx); err != nil {
			return nil, err
		}
	}

	if p.keep {
		if err := p.exportEnvironment(ctx); err != nil {
			return nil, err
		}
	}

	return &Result{
		Output: p.output,
		RunID:  p.runID,
		Stages: p.env.Completed(),
	}, nil
}

// Returns the pipeline's environment, or nil before materialization.
func (p *Pipeline) Environment() *Environment {
	return p.env
}

// Checks stage ordering before a stage executes.
//
// Any stage invoked before the environment exists is folded into a
// provisioning failure: there is nothing to run against.
func (p *Pipeline) require(stage Stage) error {
	if stage == StageMaterialize {
		return nil
	}
	if p.env == nil {
		return fmt.Errorf("%w: stage %s invoked with no environment: %w", ErrProvision, stage, ErrStageOrder)
	}
	return p.env.require(stage)
}

// Stops the environment's container and snapshots it as an OCI archive in
// the output directory.
func (p *Pipeline) exportEnvironment(ctx context.Context) error {
	if err := p.env.container.Stop(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrBuild, err)
	}
	if err := p.env.container.Export(ctx, p.output); err != nil {
		return fmt.Errorf("%w: %w", ErrBuild, err)
	}
	return nil
}

// Destroys the environment's container, if one was materialized.
func (p *Pipeline) destroy(ctx context.Context) {
	if p.env != nil {
		p.env.container.Destroy(ctx)
	}
}

// Returns the container ID for this run.
func (p *Pipeline) containerID() string {
	return fmt.Sprintf("%s-build-%s", p.name, p.runID)
}

// Adapts a containerd runtime to the [Backend] interface.
func NewContainerdBackend(rt *runtime.Runtime) Backend {
	return containerdBackend{rt: rt}
}

type containerdBackend struct {
	rt *runtime.Runtime
}

func (b containerdBackend) Start(ctx context.Context, path, id, platform string) (Container, error) {
	return b.rt.Start(ctx, path, id, platform)
}
