package signals

import (
	"fmt"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Contribution is what one rule adds to a score.
type Contribution struct {
	Weight int
	Reason string
}

// Rule is a single check in an accumulator.
type Rule interface {
	Name() string
	Apply(cc *engine.CycleContext) Contribution
}

type funcRule struct {
	name string
	fn   func(cc *engine.CycleContext) Contribution
}

func (r funcRule) Name() string                               { return r.name }
func (r funcRule) Apply(cc *engine.CycleContext) Contribution { return r.fn(cc) }

// NewRule wraps a function as a Rule.
func NewRule(name string, fn func(cc *engine.CycleContext) Contribution) Rule {
	return funcRule{name: name, fn: fn}
}

// Threshold maps scores at or above Min to Flag.
type Threshold struct {
	Min  int
	Flag engine.Flag
}

// Accumulator scores a cycle by summing rule contributions.
type Accumulator struct {
	Name       string
	Floor      int
	Cap        int
	Rules      []Rule
	Thresholds []Threshold
}

// Evaluate runs every rule in order and classifies the clamped total.
func (a *Accumulator) Evaluate(cc *engine.CycleContext) engine.Score {
	score := 0
	reasons := []string{}
	for _, rule := range a.Rules {
		c := rule.Apply(cc)
		if c.Weight == 0 {
			continue
		}
		score += c.Weight
		if c.Reason != "" {
			reasons = append(reasons, fmt.Sprintf("%s (%+d)", c.Reason, c.Weight))
		}
	}

	if score < a.Floor {
		score = a.Floor
	}
	if score > a.Cap {
		score = a.Cap
	}

	return engine.Score{
		Value:   score,
		Reasons: reasons,
		Flag:    a.classify(score),
	}
}

// classify returns the flag of the highest threshold the score reaches.
// Thresholds are listed in ascending order.
func (a *Accumulator) classify(score int) engine.Flag {
	var flag engine.Flag
	for _, t := range a.Thresholds {
		if score >= t.Min {
			flag = t.Flag
		}
	}
	return flag
}

// WithRules returns a copy of the accumulator with extra rules appended.
func (a *Accumulator) WithRules(rules ...Rule) *Accumulator {
	out := *a
	out.Rules = append(append([]Rule(nil), a.Rules...), rules...)
	return &out
}

// Tier pairs a lower bound with the weight awarded at or above it.
type Tier struct {
	At     float64
	Weight int
}

// tiered returns the weight of the first tier value reaches. Tiers are listed
// from highest to lowest.
func tiered(value float64, tiers ...Tier) int {
	for _, t := range tiers {
		if value >= t.At {
			return t.Weight
		}
	}
	return 0
}

// below is tiered for thresholds that trigger under a value, listed from lowest to highest.
func below(value float64, tiers ...Tier) int {
	for _, t := range tiers {
		if value < t.At {
			return t.Weight
		}
	}
	return 0
}

// capped returns n*per limited to max.
func capped(n, per, max int) int {
	if n*per > max {
		return max
	}
	return n * per
}

func when(cond bool, weight int, reason string) Contribution {
	if !cond {
		return Contribution{}
	}
	return Contribution{Weight: weight, Reason: reason}
}
