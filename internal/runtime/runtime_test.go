package runtime

import (
	"strings"
	"testing"
)

func TestImageTag(t *testing.T) {
	tag := imageTag("/some/rust.tar")

	if !strings.HasPrefix(tag, "toolchain/") {
		t.Fatalf("tag %q missing toolchain/ prefix", tag)
	}
	if !strings.HasSuffix(tag, ":latest") {
		t.Fatalf("tag %q missing :latest suffix", tag)
	}

	if imageTag("/some/rust.tar") != tag {
		t.Fatal("imageTag is not deterministic")
	}

	if imageTag("/other/rust.tar") == tag {
		t.Fatal("different paths produced the same tag")
	}
}

func TestDefaultPlatform(t *testing.T) {
	p := DefaultPlatform()
	if !strings.HasPrefix(p, "linux/") {
		t.Fatalf("DefaultPlatform = %q, want linux/<arch>", p)
	}
	parts := strings.Split(p, "/")
	if len(parts) != 2 || parts[1] == "" {
		t.Fatalf("DefaultPlatform = %q, want linux/<arch>", p)
	}
}
