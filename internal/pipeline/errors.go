package pipeline

import "errors"

// One sentinel per stage. A build fails with exactly one of these, wrapping
// the underlying diagnostic from the toolchain or the runtime verbatim.
var (
	ErrProvision         = errors.New("environment provisioning failed")
	ErrCopy              = errors.New("source placement failed")
	ErrDependencyInstall = errors.New("system dependency install failed")
	ErrTargetUnsupported = errors.New("compilation target unsupported")
	ErrToolInstall       = errors.New("packaging tool install failed")
	ErrBuild             = errors.New("bundle build failed")

	// Returned when a stage is invoked before its predecessor completed.
	ErrStageOrder = errors.New("stage ordering violation")

	// Returned for host-side filesystem failures outside any stage, such
	// as preparing the output directory.
	ErrFileSystemOperation = errors.New("file system operation failed")
)
