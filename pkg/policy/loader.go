package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Loader reads guard policies from .rego and .json files.
//
// A .rego file is named after its base name. Its leading comment block is
// the description, except for header lines that set policy fields:
//
//	# Keeps the dashboard still overnight.
//	# severity: warning
//	# tags: dashboard, overnight
//	# enabled: false
//	package custom.quiet
//
// Parsed files are cached by path and reread once their size or
// modification time changes, so a reload only touches edited files.
type Loader struct {
	logger zerolog.Logger
	mu     sync.Mutex
	cache  map[string]cachedPolicy
}

type cachedPolicy struct {
	policy  Policy
	modTime time.Time
	size    int64
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]cachedPolicy),
	}
}

// LoadFromPaths loads the policies under each file or directory path.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy
	for _, path := range paths {
		policies, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, policies...)
	}

	l.logger.Debug().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return all, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	policy, err := l.loadFromFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return []Policy{*policy}, nil
}

// loadFromDirectory loads every policy file below dirPath in lexical order.
// Hidden entries are skipped, and a file that fails to parse is logged and
// left out so one bad file does not disable the rest.
func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]Policy, error) {
	var policies []Policy

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dirPath && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isPolicyFile(path) {
			return nil
		}

		policy, err := l.loadFromFile(ctx, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
			return nil
		}
		policies = append(policies, *policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return policies, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	}
	return false
}

func (l *Loader) loadFromFile(_ context.Context, path string) (*Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	l.mu.Lock()
	cached, ok := l.cache[path]
	l.mu.Unlock()
	if ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		p := cached.policy
		return &p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policy *Policy
	switch filepath.Ext(path) {
	case ".rego":
		policy, err = parseRegoFile(path, data)
	case ".json":
		policy, err = parseJSONFile(path, data)
	default:
		err = fmt.Errorf("unsupported file type: %s", path)
	}
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[path] = cachedPolicy{policy: *policy, modTime: info.ModTime(), size: info.Size()}
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Str("policy", policy.Name).
		Str("severity", string(policy.Severity)).
		Bool("reloaded", ok).
		Msg("Policy loaded from file")

	return policy, nil
}

func parseRegoFile(path string, data []byte) (*Policy, error) {
	policy := &Policy{
		Name:     strings.TrimSuffix(filepath.Base(path), ".rego"),
		Rego:     string(data),
		Severity: SeverityError,
		Enabled:  true,
		Source:   path,
	}
	if err := applyHeader(policy, string(data)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return policy, nil
}

// applyHeader reads the comment block before the first Rego statement.
func applyHeader(policy *Policy, content string) error {
	var description []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(description) > 0 {
				break
			}
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))

		key, value, found := strings.Cut(comment, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch {
		case found && key == "severity":
			sev := Severity(strings.ToLower(value))
			if err := sev.Validate(); err != nil {
				return err
			}
			policy.Severity = sev
		case found && key == "tags":
			for _, tag := range strings.Split(value, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					policy.Tags = append(policy.Tags, tag)
				}
			}
		case found && key == "enabled":
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("bad enabled header %q", value)
			}
			policy.Enabled = enabled
		case comment != "":
			description = append(description, comment)
		}
	}
	policy.Description = strings.Join(description, " ")
	return nil
}

// parseJSONFile reads a policy document; severity defaults to error.
func parseJSONFile(path string, data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if policy.Name == "" {
		return nil, fmt.Errorf("JSON policy %s has no name", path)
	}
	if policy.Rego == "" {
		return nil, fmt.Errorf("JSON policy %s has no rego module", policy.Name)
	}
	if policy.Severity == "" {
		policy.Severity = SeverityError
	}
	if err := policy.Severity.Validate(); err != nil {
		return nil, fmt.Errorf("JSON policy %s: %w", policy.Name, err)
	}
	policy.Source = path
	return &policy, nil
}
