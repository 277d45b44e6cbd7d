package protocol

import (
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(CmdBuild, &BuildRequest{Root: "/src", Output: "/dist"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, raw, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Command != CmdBuild {
		t.Fatalf("command = %q, want %q", env.Command, CmdBuild)
	}

	req, err := DecodePayload[BuildRequest](raw)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if req.Root != "/src" || req.Output != "/dist" {
		t.Fatalf("payload = %+v", req)
	}
}

func TestEncodeNilPayload(t *testing.T) {
	data, err := Encode(CmdShutdown, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, raw, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Command != CmdShutdown {
		t.Fatalf("command = %q, want %q", env.Command, CmdShutdown)
	}
	if len(raw) != 0 {
		t.Fatalf("payload = %q, want empty", raw)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestDecodeRejectsMissingCommand(t *testing.T) {
	if _, _, err := Decode([]byte(`{"payload":{}}`)); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestDecodePayloadMissing(t *testing.T) {
	if _, err := DecodePayload[BuildRequest](nil); err == nil {
		t.Fatal("expected error for missing payload")
	}
}
