package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeProfile(t *testing.T, dir, cluster, body string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+cluster+".yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadProfile_Devnet(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "devnet", `
name: Devnet
cluster: devnet
endpoint: https://rpc.devnet.example.com
commit_interval_ms: 500
submit_timeout_ms: 15000
`)

	p, err := LoadProfile(dir, "devnet")
	if err != nil {
		t.Fatalf("LoadProfile(devnet): %v", err)
	}
	if p.Name != "Devnet" {
		t.Errorf("expected name 'Devnet', got %q", p.Name)
	}
	if p.CommitInterval() != 500*time.Millisecond {
		t.Errorf("expected 500ms interval, got %v", p.CommitInterval())
	}
	if p.SubmitTimeout() != 15*time.Second {
		t.Errorf("expected 15s timeout, got %v", p.SubmitTimeout())
	}
}

func TestLoadProfile_ClusterDefaultsFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "testnet", `
name: Testnet
endpoint: https://rpc.testnet.example.com
`)

	p, err := LoadProfile(dir, "testnet")
	if err != nil {
		t.Fatalf("LoadProfile(testnet): %v", err)
	}
	if p.Cluster != "testnet" {
		t.Errorf("cluster should default from filename, got %q", p.Cluster)
	}
}

func TestLoadProfile_Missing(t *testing.T) {
	if _, err := LoadProfile(t.TempDir(), "nope"); err == nil {
		t.Error("expected error for missing profile")
	}
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "devnet", "name: Devnet\n")
	writeProfile(t, dir, "mainnet-beta", "name: Mainnet\ncommit_interval_ms: 1000\n")

	profiles, err := LoadAllProfiles(dir)
	if err != nil {
		t.Fatalf("LoadAllProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles["mainnet-beta"].CommitInterval() != time.Second {
		t.Errorf("mainnet spacing wrong: %v", profiles["mainnet-beta"].CommitInterval())
	}
}

func TestApplyProfile(t *testing.T) {
	cfg := &Config{
		ChainEndpoint:  "https://env.example.com",
		ChainCluster:   "devnet",
		CommitInterval: 500 * time.Millisecond,
		SubmitTimeout:  30 * time.Second,
	}
	cfg.ApplyProfile(&ClusterProfile{
		Cluster:          "mainnet-beta",
		Endpoint:         "https://rpc.mainnet.example.com",
		CommitIntervalMs: 1200,
	})

	if cfg.ChainCluster != "mainnet-beta" {
		t.Errorf("cluster not applied: %q", cfg.ChainCluster)
	}
	if cfg.ChainEndpoint != "https://rpc.mainnet.example.com" {
		t.Errorf("endpoint not applied: %q", cfg.ChainEndpoint)
	}
	if cfg.CommitInterval != 1200*time.Millisecond {
		t.Errorf("interval not applied: %v", cfg.CommitInterval)
	}
	if cfg.SubmitTimeout != 30*time.Second {
		t.Errorf("unset profile field must not clobber env value: %v", cfg.SubmitTimeout)
	}
}

func TestApplyProfile_Disabled(t *testing.T) {
	cfg := &Config{ChainEndpoint: "https://env.example.com"}
	cfg.ApplyProfile(&ClusterProfile{Disabled: true})
	if cfg.ChainEndpoint != "" {
		t.Error("disabled profile should turn commitment off")
	}
}
