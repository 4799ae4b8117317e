package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClusterProfile is a per-cluster chain commitment profile. Operators
// keep one profile_<cluster>.yaml per target cluster so switching from
// devnet to mainnet changes spacing and timeouts without code edits.
type ClusterProfile struct {
	Name    string `yaml:"name" json:"name"`
	Cluster string `yaml:"cluster" json:"cluster"`

	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// CommitIntervalMs spaces consecutive memo submissions. Public
	// endpoints rate-limit; mainnet profiles use wider spacing.
	CommitIntervalMs int `yaml:"commit_interval_ms" json:"commit_interval_ms"`

	// SubmitTimeoutMs bounds one submission including confirmation.
	SubmitTimeoutMs int `yaml:"submit_timeout_ms" json:"submit_timeout_ms"`

	// Disabled turns commitment off for this cluster entirely.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// CommitInterval returns the profile's submission spacing, or zero when
// unset.
func (p *ClusterProfile) CommitInterval() time.Duration {
	return time.Duration(p.CommitIntervalMs) * time.Millisecond
}

// SubmitTimeout returns the profile's per-submission timeout, or zero
// when unset.
func (p *ClusterProfile) SubmitTimeout() time.Duration {
	return time.Duration(p.SubmitTimeoutMs) * time.Millisecond
}

// LoadProfile loads a cluster profile YAML by cluster name. It searches
// the profiles directory for profile_<cluster>.yaml.
func LoadProfile(profilesDir, cluster string) (*ClusterProfile, error) {
	cluster = strings.ToLower(cluster)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", cluster))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", cluster, err)
	}

	var profile ClusterProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", cluster, err)
	}

	if profile.Cluster == "" {
		profile.Cluster = cluster
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles
// directory, keyed by cluster.
func LoadAllProfiles(profilesDir string) (map[string]*ClusterProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*ClusterProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile ClusterProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Cluster == "" {
			// Extract cluster from filename: profile_devnet.yaml -> devnet
			base := filepath.Base(path)
			profile.Cluster = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Cluster] = &profile
	}

	return profiles, nil
}

// ApplyProfile overlays a cluster profile onto the environment config.
// Profile values win only where set; env vars remain the base.
func (c *Config) ApplyProfile(p *ClusterProfile) {
	if p == nil {
		return
	}
	if p.Disabled {
		c.ChainEndpoint = ""
		return
	}
	if p.Cluster != "" {
		c.ChainCluster = p.Cluster
	}
	if p.Endpoint != "" {
		c.ChainEndpoint = p.Endpoint
	}
	if d := p.CommitInterval(); d > 0 {
		c.CommitInterval = d
	}
	if d := p.SubmitTimeout(); d > 0 {
		c.SubmitTimeout = d
	}
}
