package policy

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Guard evaluates Rego policies against write intents. It implements
// engine.IntentGuard.
type Guard struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	settings Settings
	cfg      Config
	loader   *Loader
	logger   zerolog.Logger
}

var _ engine.IntentGuard = (*Guard)(nil)

// compiledPolicy is a prepared deny query for one policy.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewGuard compiles the enabled built-in policies plus cfg.Files.
func NewGuard(ctx context.Context, cfg Config, logger zerolog.Logger) (*Guard, error) {
	g := &Guard{
		cfg:    cfg,
		logger: logger.With().Str("component", "policy-guard").Logger(),
		loader: NewLoader(logger),
		settings: Settings{
			ProtectedTables: slices.Clone(cfg.ProtectedTables),
			MaxRows:         cfg.MaxRows,
		},
	}

	policies, err := g.collect(ctx)
	if err != nil {
		return nil, err
	}
	compiled, err := compileAll(ctx, policies)
	if err != nil {
		return nil, err
	}
	g.policies = compiled

	g.logger.Info().
		Int("count", len(compiled)).
		Msg("Policies loaded")

	return g, nil
}

// collect gathers the enabled built-ins and the configured policy files.
func (g *Guard) collect(ctx context.Context) ([]Policy, error) {
	var policies []Policy
	for _, p := range BuiltinPolicies() {
		if slices.Contains(g.cfg.Disabled, p.Name) {
			continue
		}
		policies = append(policies, p)
	}

	if len(g.cfg.Files) > 0 {
		loaded, err := g.loader.LoadFromPaths(ctx, g.cfg.Files)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
		policies = append(policies, loaded...)
	}
	return policies, nil
}

func compileAll(ctx context.Context, policies []Policy) (map[string]*compiledPolicy, error) {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		if !policies[i].Enabled {
			continue
		}
		if _, dup := compiled[policies[i].Name]; dup {
			return nil, fmt.Errorf("duplicate policy name %s", policies[i].Name)
		}
		cp, err := compile(ctx, &policies[i])
		if err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled[policies[i].Name] = cp
	}
	return compiled, nil
}

// compile parses the module and prepares a query for its deny set.
func compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name+".rego", policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	query, err := rego.New(
		rego.Module(policy.Name+".rego", policy.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{policy: policy, query: query}, nil
}

// Reload recompiles every policy, rereading policy files changed on disk.
// The previous set stays active when the new one fails to compile.
func (g *Guard) Reload(ctx context.Context) error {
	policies, err := g.collect(ctx)
	if err != nil {
		return err
	}
	compiled, err := compileAll(ctx, policies)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.policies = compiled
	g.mu.Unlock()

	g.logger.Info().
		Int("count", len(compiled)).
		Msg("Policies reloaded")
	return nil
}

// Check evaluates every policy against the intent. Blocking violations deny
// the write with a *DeniedError; warnings are logged.
func (g *Guard) Check(ctx context.Context, intent *engine.WriteIntent) error {
	violations, err := g.Evaluate(ctx, intent)
	if err != nil {
		return err
	}

	var blocking []Violation
	for _, v := range violations {
		if v.Severity.Blocking() {
			blocking = append(blocking, v)
			continue
		}
		g.logger.Warn().
			Str("policy", v.Policy).
			Str("destination", v.Destination).
			Str("intent_id", v.IntentID).
			Msg(v.Message)
	}
	if len(blocking) > 0 {
		return &DeniedError{Violations: blocking}
	}
	return nil
}

// Evaluate returns every violation the intent triggers, in policy name order.
func (g *Guard) Evaluate(ctx context.Context, intent *engine.WriteIntent) ([]Violation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	input := NewInput(intent, g.settings)
	var violations []Violation
	for _, name := range g.namesLocked() {
		cp := g.policies[name]
		results, err := cp.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation error: %w", name, err)
		}
		for _, result := range results {
			if len(result.Expressions) == 0 {
				continue
			}
			denySet, ok := result.Expressions[0].Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, createViolation(cp.policy, d, intent))
			}
		}
	}
	return violations, nil
}

// createViolation creates a Violation from one deny entry, which may be a
// plain message or an object with message and severity.
func createViolation(policy *Policy, result interface{}, intent *engine.WriteIntent) Violation {
	violation := Violation{
		Policy:      policy.Name,
		Destination: intent.Destination,
		IntentID:    intent.ID,
		Severity:    policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// Policies returns the active policies sorted by name.
func (g *Guard) Policies() []Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := g.namesLocked()
	policies := make([]Policy, 0, len(names))
	for _, name := range names {
		policies = append(policies, *g.policies[name].policy)
	}
	return policies
}

func (g *Guard) namesLocked() []string {
	names := make([]string, 0, len(g.policies))
	for name := range g.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
