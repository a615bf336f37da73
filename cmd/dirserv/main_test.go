package main

import (
	"testing"

	"dqx0.com/go/dirserv/internal/config"
)

func TestApplyArgs(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	if err := applyArgs(cfg, "", -1, "", "", []string{"9090", dir}); err != nil {
		t.Fatalf("applyArgs: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Root != dir {
		t.Fatalf("port=%d root=%q", cfg.Server.Port, cfg.Server.Root)
	}

	// Flags win over positional arguments.
	if err := applyArgs(cfg, "127.0.0.1", 7070, "", "debug", []string{"9090"}); err != nil {
		t.Fatalf("applyArgs: %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Server.Host != "127.0.0.1" || cfg.Log.Level != "debug" {
		t.Fatalf("got %+v %+v", cfg.Server, cfg.Log)
	}
}

func TestApplyArgsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"eighty"},
		{"80", t.TempDir(), "extra"},
		{"80", "/no/such/dir"},
		{"70000"},
	} {
		if err := applyArgs(config.Default(), "", -1, "", "", args); err == nil {
			t.Errorf("applyArgs(%q) succeeded", args)
		}
	}
}

func TestApplyArgsOverridesBadEnvironment(t *testing.T) {
	t.Setenv("DIRSERV_ROOT", "/no/such/dir")
	cfg, err := config.Read("")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	dir := t.TempDir()
	if err := applyArgs(cfg, "", -1, dir, "", nil); err != nil {
		t.Fatalf("applyArgs with -root: %v", err)
	}
	if cfg.Server.Root != dir {
		t.Fatalf("root=%q", cfg.Server.Root)
	}

	cfg, _ = config.Read("")
	if err := applyArgs(cfg, "", -1, "", "", []string{"8081", dir}); err != nil {
		t.Fatalf("applyArgs with positional root: %v", err)
	}
}
