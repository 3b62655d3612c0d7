package signals

import (
	"fmt"
	"sort"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Pattern scores clustering of this cycle's events by domain and
// neighborhood, in [0,12].
func Pattern() *Accumulator {
	return &Accumulator{
		Name:  "pattern",
		Floor: 0,
		Cap:   12,
		Rules: []Rule{
			NewRule("dominant_domain", func(cc *engine.CycleContext) Contribution {
				d, n := dominantDomain(cc.Events)
				w := tiered(float64(n), Tier{At: 5, Weight: 5}, Tier{At: 3, Weight: 3}, Tier{At: 2, Weight: 1})
				return when(w > 0, w, fmt.Sprintf("%d %s events", n, d))
			}),
			NewRule("hotspot", func(cc *engine.CycleContext) Contribution {
				h, n := hotspot(cc.Events)
				w := tiered(float64(n), Tier{At: 4, Weight: 4}, Tier{At: 3, Weight: 3}, Tier{At: 2, Weight: 1})
				return when(w > 0, w, fmt.Sprintf("%d events in %s", n, h))
			}),
			NewRule("severe_cluster", func(cc *engine.CycleContext) Contribution {
				d, _ := dominantDomain(cc.Events)
				n := 0
				for _, ev := range cc.Events {
					if ev.Domain == d && ev.Severity == engine.SeverityHigh {
						n++
					}
				}
				return when(n >= 2, 2, fmt.Sprintf("%d high-severity %s events", n, d))
			}),
			NewRule("concentration", func(cc *engine.CycleContext) Contribution {
				distinct := make(map[engine.Domain]bool)
				for _, ev := range cc.Events {
					distinct[ev.Domain] = true
				}
				return when(len(cc.Events) >= 4 && len(distinct) <= 2, 2,
					fmt.Sprintf("%d events across %d domains", len(cc.Events), len(distinct)))
			}),
		},
		Thresholds: []Threshold{
			{Min: 0, Flag: engine.FlagNoPattern},
			{Min: 3, Flag: engine.FlagEmergingPattern},
			{Min: 6, Flag: engine.FlagPatternWave},
		},
	}
}

// ApplyPattern evaluates pattern detection and stores it with the dominant
// domain and hotspot.
func ApplyPattern(cc *engine.CycleContext, acc *Accumulator) engine.PatternSignal {
	if acc == nil {
		acc = Pattern()
	}
	d, _ := dominantDomain(cc.Events)
	h, _ := hotspot(cc.Events)
	cc.Summary.Pattern = engine.PatternSignal{
		Score:          acc.Evaluate(cc),
		DominantDomain: d,
		Hotspot:        h,
	}
	return cc.Summary.Pattern
}

// dominantDomain returns the domain with the most events. Ties go to the
// domain listed first in engine.Domains.
func dominantDomain(events []engine.Event) (engine.Domain, int) {
	counts := make(map[engine.Domain]int)
	for _, ev := range events {
		counts[ev.Domain]++
	}
	var best engine.Domain
	bestN := 0
	for _, d := range engine.Domains {
		if counts[d] > bestN {
			best, bestN = d, counts[d]
		}
	}
	return best, bestN
}

// hotspot returns the neighborhood with the most events. Ties go to the
// alphabetically first name.
func hotspot(events []engine.Event) (string, int) {
	counts := make(map[string]int)
	for _, ev := range events {
		if ev.Neighborhood != "" {
			counts[ev.Neighborhood]++
		}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestN := "", 0
	for _, name := range names {
		if counts[name] > bestN {
			best, bestN = name, counts[name]
		}
	}
	return best, bestN
}
