package recovery

import (
	"fmt"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/signals"
)

// maxOverload bounds the overload score; no combination of rules reaches it.
const maxOverload = 40

// step is one tier of a count-based contribution.
type step struct {
	at, weight int
}

func stepped(n int, steps ...step) int {
	for _, s := range steps {
		if n >= s.at {
			return s.weight
		}
	}
	return 0
}

func countRule(name, noun string, count func(*engine.CycleContext) int, steps ...step) signals.Rule {
	return signals.NewRule(name, func(cc *engine.CycleContext) signals.Contribution {
		n := count(cc)
		w := stepped(n, steps...)
		if w == 0 {
			return signals.Contribution{}
		}
		return signals.Contribution{Weight: w, Reason: fmt.Sprintf("%d %s", n, noun)}
	})
}

// Overload returns the accumulator computing the overload score from the
// current cycle's signals. Civic load must already be in the summary.
func Overload() *signals.Accumulator {
	return &signals.Accumulator{
		Name:  "overload",
		Floor: 0,
		Cap:   maxOverload,
		Rules: []signals.Rule{
			countRule("events", "events", func(cc *engine.CycleContext) int { return len(cc.Events) },
				step{10, 3}, step{6, 2}, step{3, 1}),
			countRule("story_hooks", "story hooks", func(cc *engine.CycleContext) int { return len(cc.StoryHooks) },
				step{8, 2}, step{5, 1}),
			countRule("texture_triggers", "texture triggers", func(cc *engine.CycleContext) int { return len(cc.TextureTriggers) },
				step{8, 2}, step{5, 1}),
			signals.NewRule("shock", func(cc *engine.CycleContext) signals.Contribution {
				if !cc.HasShock() {
					return signals.Contribution{}
				}
				return signals.Contribution{Weight: 2, Reason: "shock flag " + cc.ShockFlag}
			}),
			signals.NewRule("civic_flag", func(cc *engine.CycleContext) signals.Contribution {
				switch cc.CivicFlag() {
				case engine.FlagLoadStrain:
					return signals.Contribution{Weight: 2, Reason: "civic load-strain"}
				case engine.FlagMinorVariance:
					return signals.Contribution{Weight: 1, Reason: "civic minor-variance"}
				}
				return signals.Contribution{}
			}),
			countRule("civic_score", "civic load score", func(cc *engine.CycleContext) int { return cc.Summary.CivicLoad.Value },
				step{15, 2}, step{10, 1}),
			signals.NewRule("economic_mood", func(cc *engine.CycleContext) signals.Contribution {
				mood := cc.Mood()
				switch {
				case mood < 25:
					return signals.Contribution{Weight: 2, Reason: fmt.Sprintf("economic distress %.0f", mood)}
				case mood < 40:
					return signals.Contribution{Weight: 1, Reason: fmt.Sprintf("economic unease %.0f", mood)}
				}
				return signals.Contribution{}
			}),
			signals.NewRule("comfort", func(cc *engine.CycleContext) signals.Contribution {
				if cc.ComfortIndex() >= 0.3 {
					return signals.Contribution{}
				}
				return signals.Contribution{Weight: 1, Reason: fmt.Sprintf("comfort index %.2f", cc.ComfortIndex())}
			}),
			signals.NewRule("weather_impact", func(cc *engine.CycleContext) signals.Contribution {
				if cc.WeatherImpact() < 1.5 {
					return signals.Contribution{}
				}
				return signals.Contribution{Weight: 1, Reason: fmt.Sprintf("weather impact %.2f", cc.WeatherImpact())}
			}),
			countRule("arcs_at_peak", "arcs at peak", func(cc *engine.CycleContext) int { return cc.ArcsAtPeak() },
				step{3, 2}, step{1, 1}),
		},
	}
}
