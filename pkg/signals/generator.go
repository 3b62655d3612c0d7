package signals

import (
	"fmt"
	"math"
	"strings"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/rng"
)

// Stream salts. Each draw category has its own stream so adding a draw in one
// never shifts the others.
const (
	streamCount        = "events.count"
	streamDomain       = "events.domain"
	streamNeighborhood = "events.neighborhood"
	streamSeverity     = "events.severity"
	streamDescription  = "events.description"
)

// GeneratorConfig tunes event generation.
type GeneratorConfig struct {
	MinEvents     int                       `json:"min_events" yaml:"min_events" validate:"gte=0"`
	MaxEvents     int                       `json:"max_events" yaml:"max_events" validate:"gtefield=MinEvents"`
	HighChance    float64                   `json:"high_chance" yaml:"high_chance" validate:"gte=0,lte=1"`
	MediumChance  float64                   `json:"medium_chance" yaml:"medium_chance" validate:"gte=0,lte=1"`
	RepeatPenalty float64                   `json:"repeat_penalty" yaml:"repeat_penalty" validate:"gte=0,lte=1"`
	Neighborhoods []string                  `json:"neighborhoods" yaml:"neighborhoods" validate:"min=1,dive,required"`
	DomainWeights map[engine.Domain]float64 `json:"domain_weights,omitempty" yaml:"domain_weights,omitempty"`
}

// DefaultGeneratorConfig returns the stock generation settings.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MinEvents:     2,
		MaxEvents:     5,
		HighChance:    0.15,
		MediumChance:  0.35,
		RepeatPenalty: 0.5,
		Neighborhoods: []string{
			"Downtown", "Harbor", "Old Mill", "Riverside", "Northgate", "Eastfield",
		},
	}
}

var baseDomainWeights = map[engine.Domain]float64{
	engine.DomainCivic:          1.0,
	engine.DomainCrime:          1.0,
	engine.DomainHealth:         0.8,
	engine.DomainInfrastructure: 0.8,
	engine.DomainWeather:        0.6,
	engine.DomainCulture:        1.0,
	engine.DomainSports:         0.6,
	engine.DomainBusiness:       0.8,
	engine.DomainCommunity:      1.0,
	engine.DomainEducation:      0.6,
	engine.DomainTransit:        0.8,
	engine.DomainEnvironment:    0.6,
}

var headlines = map[engine.Domain][]string{
	engine.DomainCivic:          {"Council debate runs late over %s zoning", "Petition circulates in %s"},
	engine.DomainCrime:          {"Break-ins reported across %s", "Arrest made after standoff in %s"},
	engine.DomainHealth:         {"Clinic in %s sees waiting room overflow", "Flu cases climb in %s"},
	engine.DomainInfrastructure: {"Water main bursts under %s", "Power flickers through %s"},
	engine.DomainWeather:        {"Storm damage cleanup begins in %s", "Heat advisory for %s"},
	engine.DomainCulture:        {"Gallery opening draws crowd in %s", "Street festival fills %s"},
	engine.DomainSports:         {"Fans pack bars in %s", "Youth league final held in %s"},
	engine.DomainBusiness:       {"Shop closes its doors in %s", "New market opens in %s"},
	engine.DomainCommunity:      {"Neighbors organize cleanup in %s", "Block party in %s"},
	engine.DomainEducation:      {"School board meets over %s closures", "Library hours cut in %s"},
	engine.DomainTransit:        {"Bus line rerouted around %s", "Signal failure delays trains at %s"},
	engine.DomainEnvironment:    {"Park restoration starts in %s", "Air quality alert in %s"},
}

// Generator draws the cycle's new events.
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Generate draws events for the cycle and appends them to the context. The
// count is scaled by the previous cycle's event suppression, and high
// severity is demoted while the previous recovery level is heavy.
func (g *Generator) Generate(cc *engine.CycleContext) []engine.Event {
	weights := g.DomainWeights(cc)
	count := g.eventCount(cc)

	domainStream := cc.RNG.Stream(streamDomain)
	nbStream := cc.RNG.Stream(streamNeighborhood)
	sevStream := cc.RNG.Stream(streamSeverity)
	descStream := cc.RNG.Stream(streamDescription)

	hoods := g.neighborhoodPool(cc)
	events := make([]engine.Event, 0, count)
	for i := 0; i < count; i++ {
		pool := expand(engine.Domains, weights)
		if len(pool) == 0 {
			break
		}
		domain := pool[rng.Intn(domainStream, len(pool))]
		weights[domain] *= g.cfg.RepeatPenalty

		hood := ""
		if len(hoods) > 0 {
			hood = hoods[rng.Intn(nbStream, len(hoods))]
		}

		events = append(events, engine.Event{
			Cycle:        cc.CycleID,
			Description:  fmt.Sprintf(rng.Pick(descStream, headlines[domain]), hood),
			Domain:       domain,
			Severity:     g.severity(cc, sevStream),
			Neighborhood: hood,
		})
	}

	cc.AddEvents(events...)
	return events
}

func (g *Generator) eventCount(cc *engine.CycleContext) int {
	span := g.cfg.MaxEvents - g.cfg.MinEvents + 1
	n := g.cfg.MinEvents
	if span > 1 {
		n += rng.Intn(cc.RNG.Stream(streamCount), span)
	}
	scaled := int(math.Round(float64(n) * cc.PriorSuppression().Event))
	if scaled < 0 {
		return 0
	}
	return scaled
}

func (g *Generator) severity(cc *engine.CycleContext, src rng.Source) engine.Severity {
	low := 1 - g.cfg.HighChance - g.cfg.MediumChance
	if low < 0 {
		low = 0
	}
	sev := []engine.Severity{engine.SeverityLow, engine.SeverityMedium, engine.SeverityHigh}[rng.WeightedIndex(src,
		[]float64{low, g.cfg.MediumChance, g.cfg.HighChance})]
	if sev == engine.SeverityHigh && cc.PriorRecovery.Level == engine.RecoveryHeavy {
		return engine.SeverityMedium
	}
	return sev
}

// DomainWeights returns the base weights adjusted additively for the season,
// holiday, sports calendar, economic mood and weather.
func (g *Generator) DomainWeights(cc *engine.CycleContext) map[engine.Domain]float64 {
	w := make(map[engine.Domain]float64, len(engine.Domains))
	for d, v := range baseDomainWeights {
		w[d] = v
	}
	for d, v := range g.cfg.DomainWeights {
		w[d] = v
	}

	switch strings.ToLower(cc.Calendar.Season) {
	case "winter":
		w[engine.DomainWeather] += 1
		w[engine.DomainHealth] += 0.5
	case "spring":
		w[engine.DomainEnvironment] += 0.5
		w[engine.DomainCommunity] += 0.5
	case "summer":
		w[engine.DomainCulture] += 0.5
		w[engine.DomainSports] += 0.5
		w[engine.DomainEnvironment] += 0.5
	case "fall", "autumn":
		w[engine.DomainEducation] += 1
	}

	switch cc.Calendar.HolidayPriority {
	case engine.HolidayMajor:
		w[engine.DomainCulture] += 1
		w[engine.DomainCommunity] += 1
		w[engine.DomainTransit] += 0.5
	case engine.HolidayMinor:
		w[engine.DomainCommunity] += 0.5
	}

	switch cc.Calendar.SportsSeason {
	case engine.SportsRegular:
		w[engine.DomainSports] += 0.5
	case engine.SportsPlayoffs:
		w[engine.DomainSports] += 1.5
	case engine.SportsChampionship:
		w[engine.DomainSports] += 2.5
	}

	switch mood := cc.Mood(); {
	case mood < 40:
		w[engine.DomainBusiness] += 1
		w[engine.DomainCrime] += 0.5
		w[engine.DomainCivic] += 0.5
	case mood > 65:
		w[engine.DomainBusiness] += 0.5
		w[engine.DomainCulture] += 0.5
	}

	if cc.WeatherImpact() > 1.3 {
		w[engine.DomainWeather] += 1.5
		w[engine.DomainInfrastructure] += 0.5
		w[engine.DomainTransit] += 0.5
	}
	return w
}

// neighborhoodPool weighs every neighborhood equally, with a bonus for
// neighborhoods hosting an arc at its peak.
func (g *Generator) neighborhoodPool(cc *engine.CycleContext) []string {
	var names []string
	for _, s := range cc.Neighborhoods {
		names = append(names, s.Name)
	}
	if len(names) == 0 {
		names = g.cfg.Neighborhoods
	}

	weights := make(map[string]float64, len(names))
	for _, n := range names {
		weights[n] = 1
	}
	for _, arc := range cc.Arcs {
		if _, ok := weights[arc.Neighborhood]; ok && arc.AtPeak() {
			weights[arc.Neighborhood] += 0.5
		}
	}
	return expand(names, weights)
}

// expand turns weights into a discrete pool with round(weight*10) copies of
// each key, in the order keys are listed.
func expand[K comparable](keys []K, weights map[K]float64) []K {
	var pool []K
	for _, k := range keys {
		n := int(math.Round(weights[k] * 10))
		for i := 0; i < n; i++ {
			pool = append(pool, k)
		}
	}
	return pool
}
