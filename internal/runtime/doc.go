// Package runtime manages build environments backed by containerd.
//
// A [Runtime] connects to a containerd daemon and materializes build
// environments from OCI toolchain archives. The archive is imported into
// the content store, tagged with a deterministic content hash, unpacked
// for the target platform, and used to create a container with an
// overlayfs snapshot.
//
// Each [Container] wraps a running containerd task. The pipeline executes
// toolchain commands inside it, streams the crate source in and the
// finished bundle out as tar streams, and can snapshot the final
// filesystem state as a new OCI archive for reuse by a later run. A
// container that is no longer needed should be destroyed to release its
// snapshot and task resources.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "packd")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.Start(ctx, "images/rust.tar", "build-1", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, "rustc --version", nil, "")
//	if err != nil {
//	    return err
//	}
package runtime
