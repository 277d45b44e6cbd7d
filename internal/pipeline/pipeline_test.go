package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/packforge/packd/internal/plan"
	"github.com/packforge/packd/internal/runtime"
)

// Records every operation the pipeline performs and answers Exec calls
// through a configurable hook.
type fakeContainer struct {
	// Ordered log of operations: "exec <cmd>", "mkdir <path>", and so on.
	events []string

	// Per-command Exec results. Nil (or a nil return) means exit 0.
	respond func(command string) *runtime.ExecResult

	bundle  []byte // Tar stream served by CopyFrom.
	execErr error  // Returned by every Exec when set.
}

func (f *fakeContainer) Exec(_ context.Context, command string, _ []string, _ string) (*runtime.ExecResult, error) {
	f.events = append(f.events, "exec "+command)
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.respond != nil {
		if result := f.respond(command); result != nil {
			return result, nil
		}
	}
	return &runtime.ExecResult{}, nil
}

func (f *fakeContainer) MkdirAll(_ context.Context, path string) error {
	f.events = append(f.events, "mkdir "+path)
	return nil
}

func (f *fakeContainer) CopyTo(_ context.Context, r io.Reader, destDir string) error {
	// Drain the stream the way tar extraction would.
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	f.events = append(f.events, "copy-to "+destDir)
	return nil
}

func (f *fakeContainer) CopyFrom(_ context.Context, w io.Writer, path string) error {
	f.events = append(f.events, "copy-from "+path)
	_, err := w.Write(f.bundle)
	return err
}

func (f *fakeContainer) Stop(context.Context) error {
	f.events = append(f.events, "stop")
	return nil
}

func (f *fakeContainer) Export(_ context.Context, output string) error {
	f.events = append(f.events, "export "+output)
	return nil
}

func (f *fakeContainer) Destroy(context.Context) {
	f.events = append(f.events, "destroy")
}

type fakeBackend struct {
	ctr      *fakeContainer
	startErr error
	started  []string // Image paths passed to Start.
}

func (b *fakeBackend) Start(_ context.Context, path, _, _ string) (Container, error) {
	b.started = append(b.started, path)
	if b.startErr != nil {
		return nil, b.startErr
	}
	return b.ctr, nil
}

// Builds a tar stream holding a wasm-pack style bundle directory.
func bundleTar(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	if err := tw.WriteHeader(&tar.Header{Name: "pkg/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		header := &tar.Header{
			Name:     "pkg/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// A plan with defaults applied, pointing at a throwaway source tree.
func testPlan(t *testing.T) (*plan.Plan, string) {
	t.Helper()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte("[package]\nname = \"demo\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	p := &plan.Plan{BaseImage: "images/rust.tar"}
	p.ApplyDefaults()
	return p, root
}

func testOptions(t *testing.T) (Options, *fakeBackend) {
	t.Helper()

	p, root := testPlan(t)
	backend := &fakeBackend{
		ctr: &fakeContainer{
			bundle: bundleTar(t, map[string]string{
				"demo_bg.wasm": "\x00asm",
				"demo.js":      "export default init;",
			}),
		},
	}

	return Options{
		Plan:   p,
		Root:   root,
		Output: filepath.Join(t.TempDir(), "dist"),
	}, backend
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	opts, backend := testOptions(t)

	result, err := Run(context.Background(), backend, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStages := Stages()
	if len(result.Stages) != len(wantStages) {
		t.Fatalf("completed %d stages, want %d: %v", len(result.Stages), len(wantStages), result.Stages)
	}
	for i, s := range wantStages {
		if result.Stages[i] != s {
			t.Errorf("stage[%d] = %s, want %s", i, result.Stages[i], s)
		}
	}

	want := []string{
		"mkdir /build",
		"copy-to /build",
		"exec apt-get update",
		"exec apt-get install -y libssl-dev",
		"exec rustup target add wasm32-unknown-unknown",
		"exec cargo install wasm-pack",
		"exec wasm-pack build --target web",
		"copy-from /build/pkg",
		"destroy",
	}
	assertEvents(t, backend.ctr.events, want)
}

func assertEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v,\nwant %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunProducesBundle(t *testing.T) {
	opts, backend := testOptions(t)

	result, err := Run(context.Background(), backend, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Output != opts.Output {
		t.Fatalf("output = %q, want %q", result.Output, opts.Output)
	}
	if result.RunID == "" {
		t.Fatal("result has no run ID")
	}

	for _, name := range []string{"demo_bg.wasm", "demo.js"} {
		if _, err := os.Stat(filepath.Join(opts.Output, name)); err != nil {
			t.Errorf("bundle missing %s: %v", name, err)
		}
	}
}

func TestProvisionFailureIsFatal(t *testing.T) {
	opts, backend := testOptions(t)
	backend.startErr = errors.New("toolchain archive unreadable")
	backend.ctr = nil

	_, err := Run(context.Background(), backend, opts)
	if !errors.Is(err, ErrProvision) {
		t.Fatalf("err = %v, want ErrProvision", err)
	}
}

func TestDependencyInstallFailureHaltsRun(t *testing.T) {
	opts, backend := testOptions(t)
	backend.ctr.respond = func(command string) *runtime.ExecResult {
		if command == "apt-get update" {
			return &runtime.ExecResult{
				ExitCode: 100,
				Stderr:   "Could not resolve 'deb.debian.org'",
			}
		}
		return nil
	}

	_, err := Run(context.Background(), backend, opts)
	if !errors.Is(err, ErrDependencyInstall) {
		t.Fatalf("err = %v, want ErrDependencyInstall", err)
	}
	if !strings.Contains(err.Error(), "Could not resolve") {
		t.Errorf("diagnostic output not preserved: %v", err)
	}

	for _, event := range backend.ctr.events {
		if strings.Contains(event, "rustup") || strings.Contains(event, "cargo") || strings.Contains(event, "wasm-pack") {
			t.Errorf("stage ran after failure: %q", event)
		}
	}
}

func TestTargetUnsupportedHaltsRun(t *testing.T) {
	opts, backend := testOptions(t)
	backend.ctr.respond = func(command string) *runtime.ExecResult {
		if strings.HasPrefix(command, "rustup target add") {
			return &runtime.ExecResult{
				ExitCode: 1,
				Stderr:   "error: toolchain has no target 'wasm32-unknown-unknown'",
			}
		}
		return nil
	}

	_, err := Run(context.Background(), backend, opts)
	if !errors.Is(err, ErrTargetUnsupported) {
		t.Fatalf("err = %v, want ErrTargetUnsupported", err)
	}

	for _, event := range backend.ctr.events {
		if strings.Contains(event, "cargo install") || strings.Contains(event, "build --target") {
			t.Errorf("build attempted after target failure: %q", event)
		}
	}
}

func TestBuildFailurePublishesNothing(t *testing.T) {
	opts, backend := testOptions(t)
	backend.ctr.respond = func(command string) *runtime.ExecResult {
		if strings.HasPrefix(command, "wasm-pack build") {
			return &runtime.ExecResult{
				ExitCode: 101,
				Stderr:   "error[E0425]: cannot find value `x` in this scope",
			}
		}
		return nil
	}

	_, err := Run(context.Background(), backend, opts)
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("err = %v, want ErrBuild", err)
	}
	if !strings.Contains(err.Error(), "E0425") {
		t.Errorf("compiler diagnostic not preserved: %v", err)
	}

	entries, readErr := os.ReadDir(opts.Output)
	if readErr == nil && len(entries) > 0 {
		t.Errorf("partial bundle published: %v", entries)
	}
}

func TestIncompleteBundleFailsBuild(t *testing.T) {
	opts, backend := testOptions(t)
	backend.ctr.bundle = bundleTar(t, map[string]string{
		"demo.js": "export default init;", // No .wasm binary.
	})

	_, err := Run(context.Background(), backend, opts)
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("err = %v, want ErrBuild", err)
	}
}

func TestStageBeforeMaterializeIsOrderingViolation(t *testing.T) {
	opts, backend := testOptions(t)
	p := New(backend, opts)

	err := p.AddCompilationTarget(context.Background())
	if !errors.Is(err, ErrProvision) {
		t.Fatalf("err = %v, want ErrProvision", err)
	}
	if !errors.Is(err, ErrStageOrder) {
		t.Fatalf("err = %v, want ErrStageOrder in chain", err)
	}
	if len(backend.ctr.events) != 0 {
		t.Errorf("container touched despite ordering violation: %v", backend.ctr.events)
	}
}

func TestSkippedStageIsOrderingViolation(t *testing.T) {
	opts, backend := testOptions(t)
	p := New(backend, opts)
	ctx := context.Background()

	if err := p.MaterializeEnvironment(ctx); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	// place-source was skipped.
	err := p.InstallSystemDependency(ctx)
	if !errors.Is(err, ErrStageOrder) {
		t.Fatalf("err = %v, want ErrStageOrder", err)
	}
}

func TestInstallSystemDependencyIsIdempotent(t *testing.T) {
	opts, backend := testOptions(t)
	p := New(backend, opts)
	ctx := context.Background()

	if err := p.MaterializeEnvironment(ctx); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if err := p.PlaceSource(ctx); err != nil {
		t.Fatalf("place source: %v", err)
	}

	if err := p.InstallSystemDependency(ctx); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if err := p.InstallSystemDependency(ctx); err != nil {
		t.Fatalf("second install: %v", err)
	}
}

func TestKeepImageExportsEnvironment(t *testing.T) {
	opts, backend := testOptions(t)
	opts.KeepImage = true

	if _, err := Run(context.Background(), backend, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stopped, exported bool
	for _, event := range backend.ctr.events {
		if event == "stop" {
			stopped = true
		}
		if strings.HasPrefix(event, "export ") {
			exported = true
		}
	}
	if !stopped || !exported {
		t.Fatalf("environment not exported: %v", backend.ctr.events)
	}
}

func TestEnvironmentDestroyedOnFailure(t *testing.T) {
	opts, backend := testOptions(t)
	backend.ctr.respond = func(command string) *runtime.ExecResult {
		if command == "apt-get update" {
			return &runtime.ExecResult{ExitCode: 100}
		}
		return nil
	}

	_, err := Run(context.Background(), backend, opts)
	if err == nil {
		t.Fatal("expected error")
	}

	last := backend.ctr.events[len(backend.ctr.events)-1]
	if last != "destroy" {
		t.Fatalf("last event = %q, want destroy", last)
	}
}
