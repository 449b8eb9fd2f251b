package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML values like "10s" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DeploymentProfile is a named YAML bundle of environment-specific knobs:
// timeouts, oracle model, store and archive backends.
type DeploymentProfile struct {
	Name     string        `yaml:"name" json:"name"`
	Oracle   OracleConfig  `yaml:"oracle" json:"oracle"`
	Store    StoreConfig   `yaml:"store" json:"store"`
	Archive  ArchiveConfig `yaml:"archive" json:"archive"`
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`
}

// OracleConfig selects the advisory oracle.
type OracleConfig struct {
	// Kind is "llm", "rules", or "none".
	Kind    string   `yaml:"kind" json:"kind"`
	URL     string   `yaml:"url,omitempty" json:"url,omitempty"`
	Model   string   `yaml:"model,omitempty" json:"model,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	// Backend is "memory", "sqlite", "postgres", or "redis".
	Backend string `yaml:"backend" json:"backend"`
	DSN     string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// ArchiveConfig selects the report archive backend.
type ArchiveConfig struct {
	// Backend is "", "fs", "s3", or "gcs". Empty disables archival.
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
	Bucket  string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Dir     string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// TimeoutConfig bounds the pipeline phases.
type TimeoutConfig struct {
	Propose Duration `yaml:"propose,omitempty" json:"propose,omitempty"`
	Execute Duration `yaml:"execute,omitempty" json:"execute,omitempty"`
	Verify  Duration `yaml:"verify,omitempty" json:"verify,omitempty"`
}

// LoadProfile loads a deployment profile by name. It searches the
// profiles directory for profile_<name>.yaml.
func LoadProfile(profilesDir, name string) (*DeploymentProfile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	return &profile, nil
}

// ListProfiles returns the profile names available under profilesDir.
func ListProfiles(profilesDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		name := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		names = append(names, name)
	}
	return names, nil
}
