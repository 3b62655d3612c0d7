package signals

import (
	"fmt"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Module names accepted by Suite.Attach.
const (
	ModuleCivicLoad   = "civic_load"
	ModuleCycleWeight = "cycle_weight"
	ModulePattern     = "pattern"
	ModuleMigration   = "migration_drift"
)

// Suite bundles the generator and the four scoring modules of a cycle.
type Suite struct {
	Generator   *Generator
	CivicLoad   *Accumulator
	CycleWeight *Accumulator
	Pattern     *Accumulator
	Migration   *Accumulator
}

// NewSuite creates the stock modules.
func NewSuite(gen GeneratorConfig) *Suite {
	return &Suite{
		Generator:   NewGenerator(gen),
		CivicLoad:   CivicLoad(),
		CycleWeight: CycleWeight(),
		Pattern:     Pattern(),
		Migration:   Migration(),
	}
}

// Attach appends a rule to the named module.
func (s *Suite) Attach(module string, rule Rule) error {
	switch module {
	case ModuleCivicLoad:
		s.CivicLoad = s.CivicLoad.WithRules(rule)
	case ModuleCycleWeight:
		s.CycleWeight = s.CycleWeight.WithRules(rule)
	case ModulePattern:
		s.Pattern = s.Pattern.WithRules(rule)
	case ModuleMigration:
		s.Migration = s.Migration.WithRules(rule)
	default:
		return fmt.Errorf("unknown signal module %q", module)
	}
	return nil
}

// Score runs the scoring modules in dependency order: civic load first,
// since cycle weight reads it.
func (s *Suite) Score(cc *engine.CycleContext) {
	ApplyCivicLoad(cc, s.CivicLoad)
	ApplyCycleWeight(cc, s.CycleWeight)
	ApplyPattern(cc, s.Pattern)
	ApplyMigration(cc, s.Migration)
}
