// Package pipeline turns a crate source tree into a browser-ready
// WebAssembly bundle through a fixed sequence of stages.
//
// A run materializes a build environment from a toolchain image, places
// the source tree into it, installs the system library the crate links
// against, registers the WebAssembly compilation target, installs the
// packaging tool, and invokes the build. Stages execute strictly in that
// order against one shared [Environment]; the first failure halts the run
// and surfaces the failing stage's diagnostic verbatim. Nothing is retried
// and no partial bundle is ever published.
//
// Container operations are delegated to a [Backend], normally the
// containerd-based runtime package.
//
// Example usage:
//
//	result, err := pipeline.Run(ctx, pipeline.NewContainerdBackend(rt), pipeline.Options{
//	    Plan:   p,
//	    Root:   ".",
//	    Output: "dist",
//	})
//	if err != nil {
//	    return err
//	}
package pipeline
