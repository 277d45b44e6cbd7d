package pipeline

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Streams a host directory tree into the environment.
//
// The tree is written as a tar stream on one end of a pipe while the
// container extracts it into destDir on the other, so the copy never
// lands on disk in between. Entries are archived relative to the tree
// root: the contents of src appear directly under destDir.
func copyTree(ctx context.Context, ctr Container, src, destDir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "copy", Path: src, Err: fs.ErrInvalid}
	}

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		writeErr := writeTreeToTar(tw, src)
		tw.Close()
		pw.CloseWithError(writeErr)
	}()

	return ctr.CopyTo(ctx, pr, destDir)
}

// Writes a directory tree to a tar writer with paths relative to the root.
//
// Every entry under the tree is included verbatim: no exclusion rules, no
// rewriting beyond the path relativization. The root directory itself is
// not written.
func writeTreeToTar(tw *tar.Writer, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		return writeTarEntry(tw, path, filepath.ToSlash(relPath), d)
	})
}

// Writes a single file or directory entry to a tar writer.
func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, d os.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = archivePath

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(hostPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}

	return nil
}
