package plan

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrLoad    = errors.New("failed to load plan")
	ErrInvalid = errors.New("invalid plan")
)

// Default values applied to omitted plan fields.
//
// They reproduce the canonical crate-to-browser build: a Rust toolchain
// image, OpenSSL headers as the single system dependency, the bare
// wasm32 target, and wasm-pack emitting a web-platform bundle.
const (
	DefaultSource        = "."
	DefaultWorkdir       = "/build"
	DefaultSystemPackage = "libssl-dev"
	DefaultTarget        = "wasm32-unknown-unknown"
	DefaultTool          = "wasm-pack"
	DefaultPlatform      = "web"
)

// Bundle platforms wasm-pack knows how to emit loader glue for.
var knownPlatforms = map[string]bool{
	"web":        true,
	"bundler":    true,
	"nodejs":     true,
	"no-modules": true,
	"deno":       true,
}

// Describes one bundle build from crate source to browser-ready output.
type Plan struct {
	BaseImage     string `yaml:"base_image"`     // OCI archive of the toolchain image.
	Source        string `yaml:"source"`         // Crate source tree, relative to the plan file.
	Workdir       string `yaml:"workdir"`        // Build directory inside the environment.
	SystemPackage string `yaml:"system_package"` // System library installed before the build.
	Target        string `yaml:"target"`         // Compilation target registered with the toolchain.
	Tool          string `yaml:"tool"`           // Packaging tool installed via the toolchain's registry.
	Platform      string `yaml:"platform"`       // Bundle platform passed to the packaging tool.
}

// Loads a plan from a YAML file, applies defaults, and validates it.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Fills omitted fields with their default values.
//
// The base image has no default: it names the toolchain and must always
// be provided explicitly.
func (p *Plan) ApplyDefaults() {
	if p.Source == "" {
		p.Source = DefaultSource
	}
	if p.Workdir == "" {
		p.Workdir = DefaultWorkdir
	}
	if p.SystemPackage == "" {
		p.SystemPackage = DefaultSystemPackage
	}
	if p.Target == "" {
		p.Target = DefaultTarget
	}
	if p.Tool == "" {
		p.Tool = DefaultTool
	}
	if p.Platform == "" {
		p.Platform = DefaultPlatform
	}
}

// Checks that the plan is complete and internally consistent.
func (p *Plan) Validate() error {
	if p.BaseImage == "" {
		return fmt.Errorf("%w: base_image is required", ErrInvalid)
	}
	if p.Workdir == "" || p.Workdir[0] != '/' {
		return fmt.Errorf("%w: workdir %q must be an absolute path", ErrInvalid, p.Workdir)
	}
	if p.SystemPackage == "" {
		return fmt.Errorf("%w: system_package is required", ErrInvalid)
	}
	if p.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalid)
	}
	if p.Tool == "" {
		return fmt.Errorf("%w: tool is required", ErrInvalid)
	}
	if !knownPlatforms[p.Platform] {
		return fmt.Errorf("%w: unknown bundle platform %q", ErrInvalid, p.Platform)
	}
	return nil
}
