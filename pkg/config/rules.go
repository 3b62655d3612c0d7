package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/citysim/cyclekernel/pkg/policy"
	"github.com/citysim/cyclekernel/pkg/signals"
	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// BuildSuite creates the signal suite and attaches the configured rules.
func (c *Config) BuildSuite(logger *telemetry.Logger) (*signals.Suite, error) {
	suite := signals.NewSuite(c.Generation)

	for _, r := range c.Rules {
		src := r.Source
		if r.File != "" {
			data, err := os.ReadFile(c.Resolve(r.File))
			if err != nil {
				return nil, fmt.Errorf("failed to read rule %s: %w", r.Name, err)
			}
			src = string(data)
		}

		rule, err := signals.NewScriptedRule(r.Name, src, logger)
		if err != nil {
			return nil, err
		}
		if err := suite.Attach(r.Module, rule); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
	}
	return suite, nil
}

// PolicyConfig returns the policy section with file paths resolved.
func (c *Config) PolicyConfig() policy.Config {
	pc := c.Policy
	pc.Files = make([]string, len(c.Policy.Files))
	for i, f := range c.Policy.Files {
		pc.Files[i] = c.Resolve(f)
	}
	return pc
}

// WatchPaths lists the files besides the config itself whose changes
// should trigger a reload: rule scripts and policy files.
func (c *Config) WatchPaths() []string {
	var paths []string
	for _, r := range c.Rules {
		if r.File != "" {
			paths = append(paths, c.Resolve(r.File))
		}
	}
	for _, f := range c.Policy.Files {
		paths = append(paths, c.Resolve(f))
	}
	return paths
}

// Resolve makes a config-relative path absolute.
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}
