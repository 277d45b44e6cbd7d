package pipeline

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/packforge/packd/internal/paths"
)

// Directory the packaging tool emits the bundle into, relative to the
// crate root.
const bundleDir = "pkg"

var errIncompleteBundle = errors.New("incomplete bundle")

// Copies the finished bundle out of the environment into the output
// directory.
//
// The bundle is streamed out as a tar archive, extracted into a staging
// directory next to the output, verified, and only then moved into place.
// The output directory never holds a partial or unverified bundle; a
// previous bundle at the same path is replaced atomically by the rename.
func collectBundle(ctx context.Context, ctr Container, bundlePath, output string) error {
	staging, err := os.MkdirTemp(filepath.Dir(output), ".packd-bundle-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- ctr.CopyFrom(ctx, pw, bundlePath)
		pw.Close()
	}()

	if err := extractBundle(pr, staging); err != nil {
		return err
	}

	if err := <-errc; err != nil {
		return err
	}

	bundle := filepath.Join(staging, filepath.Base(bundlePath))
	if err := verifyBundle(bundle); err != nil {
		return err
	}

	if err := os.RemoveAll(output); err != nil {
		return err
	}
	return os.Rename(bundle, output)
}

// Extracts a tar stream into the destination directory.
//
// Entry names are cleaned and confined to the destination; an entry that
// would escape it (absolute or parent-traversal paths) fails the
// extraction. Only regular files and directories are materialized, which
// covers everything a packaging tool emits.
func extractBundle(r io.Reader, dest string) error {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.Clean(filepath.FromSlash(header.Name))
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes the bundle directory", header.Name)
		}
		target := filepath.Join(dest, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, paths.DefaultDirMode); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), paths.DefaultDirMode); err != nil {
				return err
			}
			if err := writeBundleFile(target, tr, header.FileInfo().Mode()); err != nil {
				return err
			}
		}
	}
}

// Writes one extracted file to disk.
func writeBundleFile(target string, r io.Reader, mode fs.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Checks that the bundle contains a WebAssembly binary and its JavaScript
// loader glue.
//
// A bundle missing either piece cannot be served to a browser, so the
// build is treated as failed even when the packaging tool exited cleanly.
func verifyBundle(bundle string) error {
	var hasWasm, hasLoader bool

	err := filepath.WalkDir(bundle, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch filepath.Ext(path) {
		case ".wasm":
			hasWasm = true
		case ".js":
			hasLoader = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !hasWasm {
		return fmt.Errorf("%w: no .wasm binary in %s", errIncompleteBundle, bundle)
	}
	if !hasLoader {
		return fmt.Errorf("%w: no JavaScript loader in %s", errIncompleteBundle, bundle)
	}
	return nil
}
