package signals

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// maxScriptSteps bounds a rule script's execution.
const maxScriptSteps = 100000

// ScriptedRule is a Rule written in Starlark. The script must define
// score(facts) returning an int or an (int, string) tuple. A failing script
// contributes nothing and is logged.
type ScriptedRule struct {
	name   string
	fn     *starlark.Function
	logger *telemetry.Logger
}

// NewScriptedRule compiles src and looks up its score function.
func NewScriptedRule(name, src string, logger *telemetry.Logger) (*ScriptedRule, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}
	thread := &starlark.Thread{Name: name}
	thread.SetMaxExecutionSteps(maxScriptSteps)

	globals, err := starlark.ExecFile(thread, name+".star", src, starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rule script %s: %w", name, err)
	}

	fn, ok := globals["score"].(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("rule script %s must define score(facts)", name)
	}
	return &ScriptedRule{
		name:   name,
		fn:     fn,
		logger: logger.NewComponentLogger("scripted_rule").WithField("rule", name),
	}, nil
}

// Name returns the rule name.
func (r *ScriptedRule) Name() string {
	return r.name
}

// Apply calls score(facts) for the current cycle.
func (r *ScriptedRule) Apply(cc *engine.CycleContext) Contribution {
	thread := &starlark.Thread{Name: r.name}
	thread.SetMaxExecutionSteps(maxScriptSteps)

	out, err := starlark.Call(thread, r.fn, starlark.Tuple{facts(cc)}, nil)
	if err != nil {
		r.logger.WithError(err).Warn("Rule script failed")
		return Contribution{}
	}

	c, err := toContribution(out)
	if err != nil {
		r.logger.WithError(err).Warn("Rule script returned an unusable value")
		return Contribution{}
	}
	if c.Reason == "" && c.Weight != 0 {
		c.Reason = r.name
	}
	return c
}

func toContribution(v starlark.Value) (Contribution, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return Contribution{}, nil
	case starlark.Int:
		w, ok := val.Int64()
		if !ok {
			return Contribution{}, fmt.Errorf("weight out of range")
		}
		return Contribution{Weight: int(w)}, nil
	case starlark.Tuple:
		if len(val) != 2 {
			return Contribution{}, fmt.Errorf("expected (weight, reason), got %d values", len(val))
		}
		c, err := toContribution(val[0])
		if err != nil {
			return Contribution{}, err
		}
		reason, ok := starlark.AsString(val[1])
		if !ok {
			return Contribution{}, fmt.Errorf("reason must be a string, got %s", val[1].Type())
		}
		c.Reason = reason
		return c, nil
	default:
		return Contribution{}, fmt.Errorf("unsupported return type %s", v.Type())
	}
}

// facts exposes a read-only view of the cycle to rule scripts.
func facts(cc *engine.CycleContext) *starlarkstruct.Struct {
	return starlarkstruct.FromStringDict(starlark.String("facts"), starlark.StringDict{
		"cycle":            starlark.MakeInt(cc.CycleID),
		"events":           starlark.MakeInt(len(cc.Events)),
		"high_events":      starlark.MakeInt(cc.CountSeverity(engine.SeverityHigh)),
		"medium_events":    starlark.MakeInt(cc.CountSeverity(engine.SeverityMedium)),
		"audit_issues":     starlark.MakeInt(len(cc.AuditIssues)),
		"story_hooks":      starlark.MakeInt(len(cc.StoryHooks)),
		"texture_triggers": starlark.MakeInt(len(cc.TextureTriggers)),
		"arcs_at_peak":     starlark.MakeInt(cc.ArcsAtPeak()),
		"shock":            starlark.Bool(cc.HasShock()),
		"economic_mood":    starlark.Float(cc.Mood()),
		"weather_impact":   starlark.Float(cc.WeatherImpact()),
		"comfort_index":    starlark.Float(cc.ComfortIndex()),
		"illness_rate":     starlark.Float(cc.Illness()),
		"weather":          starlark.String(cc.WeatherType()),
		"season":           starlark.String(cc.Calendar.Season),
		"holiday":          starlark.String(cc.Calendar.Holiday),
		"holiday_priority": starlark.String(string(cc.Calendar.HolidayPriority)),
		"sports_season":    starlark.String(string(cc.Calendar.SportsSeason)),
		"civic_score":      starlark.MakeInt(cc.Summary.CivicLoad.Value),
		"civic_flag":       starlark.String(string(cc.CivicFlag())),
	})
}
