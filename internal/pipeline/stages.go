package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
)

// Non-interactive frontend for the system package manager. Debian-based
// toolchain images otherwise stall on configuration prompts.
var aptEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

// Materializes the build environment.
//
// Starts a container from the plan's toolchain archive. The archive must
// carry a compiler toolchain for the crate's language; the pipeline does
// not verify this up front, the later stages fail against it instead.
func (p *Pipeline) MaterializeEnvironment(ctx context.Context) error {
	if err := p.require(StageMaterialize); err != nil {
		return err
	}

	slog.Info("materializing environment", "image", p.plan.BaseImage, "platform", p.platform)

	ctr, err := p.backend.Start(ctx, p.plan.BaseImage, p.containerID(), p.platform)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProvision, err)
	}

	p.env = newEnvironment(ctr, p.plan.Workdir)
	p.env.complete(StageMaterialize)
	return nil
}

// Places the crate source tree into the environment's working directory.
//
// The tree is copied in full, with no exclusion rules and no
// transformation: whatever is under the plan's source directory is what
// the build sees.
func (p *Pipeline) PlaceSource(ctx context.Context) error {
	if err := p.require(StagePlaceSource); err != nil {
		return err
	}

	src := p.sourceDir()
	slog.Info("placing source", "src", src, "workdir", p.env.workdir)

	if err := p.env.container.MkdirAll(ctx, p.env.workdir); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	if err := copyTree(ctx, p.env.container, src, p.env.workdir); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	p.env.complete(StagePlaceSource)
	return nil
}

// Installs the plan's system library dependency.
//
// The package index is refreshed first, then exactly the named package is
// installed. The package manager treats an already-installed package as
// success, so re-running this stage is harmless. An unreachable index,
// an unresolvable package name, or a missing network all fail the stage.
func (p *Pipeline) InstallSystemDependency(ctx context.Context) error {
	if err := p.require(StageSystemDependency); err != nil {
		return err
	}

	slog.Info("installing system dependency", "package", p.plan.SystemPackage)

	if err := p.exec(ctx, ErrDependencyInstall, "apt-get update", aptEnv, ""); err != nil {
		return err
	}

	install := fmt.Sprintf("apt-get install -y %s", p.plan.SystemPackage)
	if err := p.exec(ctx, ErrDependencyInstall, install, aptEnv, ""); err != nil {
		return err
	}

	p.env.complete(StageSystemDependency)
	return nil
}

// Registers the WebAssembly compilation target with the toolchain.
func (p *Pipeline) AddCompilationTarget(ctx context.Context) error {
	if err := p.require(StageAddTarget); err != nil {
		return err
	}

	slog.Info("adding compilation target", "target", p.plan.Target)

	add := fmt.Sprintf("rustup target add %s", p.plan.Target)
	if err := p.exec(ctx, ErrTargetUnsupported, add, nil, ""); err != nil {
		return err
	}

	p.env.complete(StageAddTarget)
	return nil
}

// Installs the packaging tool via the toolchain's package registry.
//
// The tool compiles crates for the registered target and emits the bundle
// plus its JavaScript loader glue. Installation compiles the tool's own
// native components, so it needs both network access and a working system
// compiler in the environment.
func (p *Pipeline) InstallPackagingTool(ctx context.Context) error {
	if err := p.require(StageInstallTool); err != nil {
		return err
	}

	slog.Info("installing packaging tool", "tool", p.plan.Tool)

	install := fmt.Sprintf("cargo install %s", p.plan.Tool)
	if err := p.exec(ctx, ErrToolInstall, install, nil, ""); err != nil {
		return err
	}

	p.env.complete(StageInstallTool)
	return nil
}

// Runs the packaging tool against the placed source and collects the
// finished bundle into the output directory.
//
// Any compiler diagnostic the crate's own build configuration treats as an
// error fails the stage, as does a packaging-tool internal error. The
// bundle is staged and verified before publication, so a failed build
// never leaves a partial bundle in the output directory.
func (p *Pipeline) InvokeBuild(ctx context.Context) error {
	if err := p.require(StageBuild); err != nil {
		return err
	}

	slog.Info("invoking build", "tool", p.plan.Tool, "platform", p.plan.Platform)

	build := fmt.Sprintf("%s build --target %s", p.plan.Tool, p.plan.Platform)
	if err := p.exec(ctx, ErrBuild, build, nil, p.env.workdir); err != nil {
		return err
	}

	bundle := path.Join(p.env.workdir, bundleDir)
	if err := collectBundle(ctx, p.env.container, bundle, p.output); err != nil {
		return fmt.Errorf("%w: %w", ErrBuild, err)
	}

	p.env.complete(StageBuild)
	slog.Info("bundle ready", "output", p.output)
	return nil
}

// Runs a command in the environment, wrapping any failure in the stage's
// sentinel with the diagnostic output preserved verbatim.
func (p *Pipeline) exec(ctx context.Context, sentinel error, command string, env []string, workdir string) error {
	result, err := p.env.container.Exec(ctx, command, env, workdir)
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %q exited with code %d: %s",
			sentinel, command, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Resolves the plan's source directory against the pipeline root.
func (p *Pipeline) sourceDir() string {
	if filepath.IsAbs(p.plan.Source) {
		return p.plan.Source
	}
	return filepath.Join(p.root, p.plan.Source)
}
