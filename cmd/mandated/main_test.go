package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"mandated", "help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("help exited %d", code)
	}
	if !strings.Contains(stdout.String(), "Usage: mandated") {
		t.Errorf("help output missing usage: %q", stdout.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"mandated", "frobnicate"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("unknown command exited %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Errorf("missing diagnostic: %q", stderr.String())
	}
}

func TestRun_CheckUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"mandated", "check"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("check without flags exited %d, want 2", code)
	}
}

func TestRun_ExportUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"mandated", "export"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("export without owner exited %d, want 2", code)
	}
}
