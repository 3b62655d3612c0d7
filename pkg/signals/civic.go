package signals

import (
	"fmt"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// CivicLoad scores how much strain the city is under, in [0,30].
func CivicLoad() *Accumulator {
	return &Accumulator{
		Name:  "civic_load",
		Floor: 0,
		Cap:   30,
		Rules: []Rule{
			NewRule("severity", func(cc *engine.CycleContext) Contribution {
				high := cc.CountSeverity(engine.SeverityHigh)
				medium := cc.CountSeverity(engine.SeverityMedium)
				w := 2*high + medium
				if w > 8 {
					w = 8
				}
				return when(w > 0, w, fmt.Sprintf("%d high and %d medium severity events", high, medium))
			}),
			NewRule("event_volume", func(cc *engine.CycleContext) Contribution {
				n := len(cc.Events)
				w := 0
				switch {
				case n > 10:
					w = 4
				case n > 5:
					w = 2
				}
				return when(w > 0, w, fmt.Sprintf("%d events this cycle", n))
			}),
			NewRule("audit_issues", func(cc *engine.CycleContext) Contribution {
				n := len(cc.AuditIssues)
				return when(n > 0, capped(n, 1, 5), fmt.Sprintf("%d audit issues", n))
			}),
			NewRule("shock", func(cc *engine.CycleContext) Contribution {
				return when(cc.HasShock(), 3, "shock flag raised")
			}),
			NewRule("weather", func(cc *engine.CycleContext) Contribution {
				return when(cc.WeatherImpact() > 1.3, 2, fmt.Sprintf("weather impact %.2f", cc.WeatherImpact()))
			}),
			NewRule("economic_mood", func(cc *engine.CycleContext) Contribution {
				w := below(cc.Mood(), Tier{At: 20, Weight: 4}, Tier{At: 35, Weight: 2})
				return when(w > 0, w, fmt.Sprintf("economic mood %.0f", cc.Mood()))
			}),
			NewRule("holiday", func(cc *engine.CycleContext) Contribution {
				return when(cc.Calendar.HolidayPriority == engine.HolidayMajor, 2, "major holiday "+cc.Calendar.Holiday)
			}),
			NewRule("special_day", func(cc *engine.CycleContext) Contribution {
				return when(cc.Calendar.IsFirstFriday || cc.Calendar.IsCreationDay, 1, "first Friday or creation day")
			}),
			NewRule("sports", func(cc *engine.CycleContext) Contribution {
				s := cc.Calendar.SportsSeason
				return when(s == engine.SportsPlayoffs || s == engine.SportsChampionship, 2, "sports "+string(s))
			}),
			NewRule("arcs_at_peak", func(cc *engine.CycleContext) Contribution {
				n := cc.ArcsAtPeak()
				return when(n > 0, capped(n, 1, 3), fmt.Sprintf("%d arcs at peak", n))
			}),
		},
		Thresholds: []Threshold{
			{Min: 0, Flag: engine.FlagStable},
			{Min: 6, Flag: engine.FlagMinorVariance},
			{Min: 12, Flag: engine.FlagLoadStrain},
		},
	}
}

// ApplyCivicLoad evaluates civic load and stores it in the summary.
func ApplyCivicLoad(cc *engine.CycleContext, acc *Accumulator) engine.Score {
	if acc == nil {
		acc = CivicLoad()
	}
	cc.Summary.CivicLoad = acc.Evaluate(cc)
	return cc.Summary.CivicLoad
}
