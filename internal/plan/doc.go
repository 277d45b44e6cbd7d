// Package plan defines the inputs of a bundle build.
//
// A plan names everything the pipeline needs: the toolchain base image,
// the crate source tree, the system library the crate links against, the
// WebAssembly compilation target, the packaging tool, and the bundle
// platform the tool should emit for. Plans are loaded from YAML files;
// omitted fields fall back to defaults suitable for a typical crate that
// links OpenSSL and targets browsers.
//
// Example plan file:
//
//	base_image: images/rust.tar
//	source: .
//	system_package: libssl-dev
//	target: wasm32-unknown-unknown
//	tool: wasm-pack
//	platform: web
package plan
