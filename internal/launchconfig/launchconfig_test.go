package launchconfig

import (
	"encoding/json"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.GDBAsync {
		t.Error("gdbAsync should default to true")
	}
	if cfg.GDB != "gdb" {
		t.Errorf("gdb should default to %q, got %q", "gdb", cfg.GDB)
	}
	if cfg.Target.Type != "remote" {
		t.Errorf("target.type should default to remote, got %q", cfg.Target.Type)
	}
	if cfg.SteppingTimeoutMillis() != 100 {
		t.Errorf("stepping timeout should default to 100ms, got %d", cfg.SteppingTimeoutMillis())
	}
}

func TestParseExplicitGDBAsyncFalse(t *testing.T) {
	raw := json.RawMessage(`{"gdbAsync": false, "program": "/bin/foo"}`)
	cfg, err := Parse(raw, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GDBAsync {
		t.Error("explicit gdbAsync=false must not be overridden by the default")
	}
	if cfg.Program != "/bin/foo" {
		t.Errorf("program = %q", cfg.Program)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse(json.RawMessage(`{not json`), false)
	if err == nil {
		t.Fatal("expected a protocol error for malformed arguments")
	}
}

func TestEnvPairsAndUnsetKeys(t *testing.T) {
	val := "bar"
	env := map[string]*string{"FOO": &val, "REMOVE_ME": nil}
	pairs := EnvPairs(env)
	if len(pairs) != 1 || pairs[0] != "FOO=bar" {
		t.Errorf("unexpected EnvPairs result: %v", pairs)
	}
	unset := UnsetKeys(env)
	if len(unset) != 1 || unset[0] != "REMOVE_ME" {
		t.Errorf("unexpected UnsetKeys result: %v", unset)
	}
}

func TestAttachConfigFlag(t *testing.T) {
	cfg, err := Parse(json.RawMessage(`{}`), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsAttach() {
		t.Fatal("expected IsAttach to reflect the attach parameter")
	}
}
