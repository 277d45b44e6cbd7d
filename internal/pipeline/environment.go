package pipeline

import (
	"fmt"
	"slices"
)

// Identifies one stage of the build pipeline.
type Stage string

// The pipeline's stages, in execution order.
const (
	StageMaterialize      Stage = "materialize"
	StagePlaceSource      Stage = "place-source"
	StageSystemDependency Stage = "install-system-dependency"
	StageAddTarget        Stage = "add-target"
	StageInstallTool      Stage = "install-tool"
	StageBuild            Stage = "build"
)

// Fixed execution order. Each stage may only run after all earlier entries
// have completed.
var stageOrder = []Stage{
	StageMaterialize,
	StagePlaceSource,
	StageSystemDependency,
	StageAddTarget,
	StageInstallTool,
	StageBuild,
}

// Stages returns the pipeline's stage sequence.
func Stages() []Stage {
	return slices.Clone(stageOrder)
}

// The mutable filesystem-plus-toolchain context a single build runs in.
//
// An Environment is created by the materialize stage and mutated by every
// stage after it. It records which stages have completed so that ordering
// can be enforced and reported. One build owns its Environment exclusively
// for the whole run; nothing mutates it concurrently, so no locking is
// needed.
type Environment struct {
	container Container // Build container holding the toolchain and filesystem.
	workdir   string    // Directory inside the container where the crate is placed and built.
	completed []Stage   // Stages that have completed, in execution order.
}

// Creates an environment around a freshly started build container.
func newEnvironment(container Container, workdir string) *Environment {
	return &Environment{
		container: container,
		workdir:   workdir,
	}
}

// Records a stage as completed.
func (e *Environment) complete(stage Stage) {
	e.completed = append(e.completed, stage)
}

// Reports whether a stage has completed in this environment.
func (e *Environment) done(stage Stage) bool {
	return slices.Contains(e.completed, stage)
}

// Returns the completed stages in execution order.
func (e *Environment) Completed() []Stage {
	return slices.Clone(e.completed)
}

// Checks that the stage's predecessor has completed.
//
// The first stage has no predecessor and always passes. Calling this on an
// environment that is missing an earlier stage returns [ErrStageOrder]
// naming both stages.
func (e *Environment) require(stage Stage) error {
	i := slices.Index(stageOrder, stage)
	if i <= 0 {
		return nil
	}

	pred := stageOrder[i-1]
	if !e.done(pred) {
		return fmt.Errorf("%w: stage %s requires completed stage %s", ErrStageOrder, stage, pred)
	}
	return nil
}
