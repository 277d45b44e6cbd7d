package pipeline

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestWriteTreeToTar(t *testing.T) {
	root := t.TempDir()

	mustWrite := func(rel, content string) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	mustWrite("Cargo.toml", "[package]")
	mustWrite("src/lib.rs", "pub fn f() {}")
	mustWrite(".hidden", "kept") // No filtering: dotfiles are copied too.

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeTreeToTar(tw, root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tw.Close()

	var names []string
	tr := tar.NewReader(&buf)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, header.Name)
	}
	sort.Strings(names)

	want := []string{".hidden", "Cargo.toml", "src", "src/lib.rs"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestWriteTreeToTarUnreadableRoot(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if err := writeTreeToTar(tw, filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing source tree")
	}
}
