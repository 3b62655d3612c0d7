package signals

import (
	"fmt"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// CycleWeight scores how newsworthy the cycle is, in [0,20]. It reads the
// civic-load score, so it runs after civic load.
func CycleWeight() *Accumulator {
	return &Accumulator{
		Name:  "cycle_weight",
		Floor: 0,
		Cap:   20,
		Rules: []Rule{
			NewRule("civic_load", func(cc *engine.CycleContext) Contribution {
				v := cc.Summary.CivicLoad.Value
				w := tiered(float64(v), Tier{At: 12, Weight: 4}, Tier{At: 6, Weight: 2})
				return when(w > 0, w, fmt.Sprintf("civic load %d", v))
			}),
			NewRule("events", func(cc *engine.CycleContext) Contribution {
				n := len(cc.Events)
				return when(n > 0, capped(n, 1, 6), fmt.Sprintf("%d events", n))
			}),
			NewRule("high_severity", func(cc *engine.CycleContext) Contribution {
				n := cc.CountSeverity(engine.SeverityHigh)
				return when(n > 0, capped(n, 1, 3), fmt.Sprintf("%d high-severity events", n))
			}),
			NewRule("story_hooks", func(cc *engine.CycleContext) Contribution {
				n := len(cc.StoryHooks)
				w := tiered(float64(n), Tier{At: 5, Weight: 2}, Tier{At: 2, Weight: 1})
				return when(w > 0, w, fmt.Sprintf("%d story hooks", n))
			}),
			NewRule("shock", func(cc *engine.CycleContext) Contribution {
				return when(cc.HasShock(), 3, "shock flag raised")
			}),
			NewRule("holiday", func(cc *engine.CycleContext) Contribution {
				switch cc.Calendar.HolidayPriority {
				case engine.HolidayMajor:
					return Contribution{Weight: 2, Reason: "major holiday"}
				case engine.HolidayMinor:
					return Contribution{Weight: 1, Reason: "minor holiday"}
				}
				return Contribution{}
			}),
			NewRule("sports", func(cc *engine.CycleContext) Contribution {
				switch cc.Calendar.SportsSeason {
				case engine.SportsChampionship:
					return Contribution{Weight: 2, Reason: "championship"}
				case engine.SportsPlayoffs:
					return Contribution{Weight: 1, Reason: "playoffs"}
				}
				return Contribution{}
			}),
			NewRule("arcs_at_peak", func(cc *engine.CycleContext) Contribution {
				n := cc.ArcsAtPeak()
				return when(n > 0, capped(n, 1, 3), fmt.Sprintf("%d arcs at peak", n))
			}),
		},
		Thresholds: []Threshold{
			{Min: 0, Flag: engine.FlagLowSignal},
			{Min: 6, Flag: engine.FlagMediumSignal},
			{Min: 12, Flag: engine.FlagHighSignal},
		},
	}
}

// ApplyCycleWeight evaluates cycle weight and stores it in the summary.
func ApplyCycleWeight(cc *engine.CycleContext, acc *Accumulator) engine.Score {
	if acc == nil {
		acc = CycleWeight()
	}
	cc.Summary.CycleWeight = acc.Evaluate(cc)
	return cc.Summary.CycleWeight
}
