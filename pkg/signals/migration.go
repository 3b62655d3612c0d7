package signals

import (
	"fmt"
	"math"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// outflowRate is the per-neighborhood net rate at or below which residents are leaving.
const outflowRate = -0.02

// Migration scores population drift, in [0,10].
func Migration() *Accumulator {
	return &Accumulator{
		Name:  "migration_drift",
		Floor: 0,
		Cap:   10,
		Rules: []Rule{
			NewRule("outflow_neighborhoods", func(cc *engine.CycleContext) Contribution {
				losing := 0
				for _, rate := range Dynamics(cc.Neighborhoods) {
					if rate <= outflowRate {
						losing++
					}
				}
				return when(losing > 0, capped(losing, 2, 6),
					fmt.Sprintf("%d neighborhoods losing residents", losing))
			}),
			NewRule("citywide_net", func(cc *engine.CycleContext) Contribution {
				rate, ok := netRate(cc.Neighborhoods)
				if !ok {
					return Contribution{}
				}
				w := 0
				switch {
				case rate <= -0.03:
					w = 3
				case rate <= -0.01:
					w = 1
				}
				return when(w > 0, w, fmt.Sprintf("citywide net migration %.3f", rate))
			}),
			NewRule("economic_mood", func(cc *engine.CycleContext) Contribution {
				return when(cc.Mood() < 35, 2, fmt.Sprintf("economic mood %.0f", cc.Mood()))
			}),
			NewRule("crime", func(cc *engine.CycleContext) Contribution {
				n := 0
				for _, ev := range cc.Events {
					if ev.Domain == engine.DomainCrime {
						n++
					}
				}
				return when(n >= 2, 1, fmt.Sprintf("%d crime events", n))
			}),
			NewRule("comfort", func(cc *engine.CycleContext) Contribution {
				return when(cc.ComfortIndex() < 0.3, 1, "uncomfortable weather")
			}),
		},
		Thresholds: []Threshold{
			{Min: 0, Flag: engine.FlagMigrationStable},
			{Min: 3, Flag: engine.FlagDrift},
			{Min: 6, Flag: engine.FlagExodusPressure},
		},
	}
}

// ApplyMigration evaluates migration drift and stores it with the dynamics vector.
func ApplyMigration(cc *engine.CycleContext, acc *Accumulator) engine.MigrationSignal {
	if acc == nil {
		acc = Migration()
	}
	cc.Summary.Migration = engine.MigrationSignal{
		Score:    acc.Evaluate(cc),
		Dynamics: Dynamics(cc.Neighborhoods),
	}
	return cc.Summary.Migration
}

// Dynamics returns the net migration rate per neighborhood, rounded to three
// decimals. Neighborhoods without population are skipped.
func Dynamics(stats []engine.NeighborhoodStats) engine.DynamicsVector {
	v := make(engine.DynamicsVector, len(stats))
	for _, s := range stats {
		if s.Population <= 0 {
			continue
		}
		v[s.Name] = round3(float64(s.Arrivals-s.Departures) / float64(s.Population))
	}
	return v
}

func netRate(stats []engine.NeighborhoodStats) (float64, bool) {
	pop, net := 0, 0
	for _, s := range stats {
		if s.Population <= 0 {
			continue
		}
		pop += s.Population
		net += s.Arrivals - s.Departures
	}
	if pop == 0 {
		return 0, false
	}
	return round3(float64(net) / float64(pop)), true
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
