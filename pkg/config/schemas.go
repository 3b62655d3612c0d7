package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers the config and inputs schemas. They are
// constants, so a failure here is a programming error.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	if err := sr.RegisterSchema("config", "#Config", builtinConfigSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("inputs", "#Inputs", builtinInputsSchema); err != nil {
		panic(err)
	}
}

// RegisterSchema compiles schema and registers the definition named root
// under name.
func (sr *SchemaRegistry) RegisterSchema(name, root, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(root))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, root)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateJSON checks a JSON document against a named schema.
func (sr *SchemaRegistry) ValidateJSON(schemaName, filename string, data []byte) error {
	val := sr.ctx.CompileBytes(data, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return convertCUEErrors(err)
	}
	return sr.Validate(schemaName, val)
}

// Validate unifies val with a named schema and requires a concrete result.
// val must come from Context.
func (sr *SchemaRegistry) Validate(schemaName string, val cue.Value) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// Context returns the CUE context schemas were compiled in.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		format, args := e.Msg()
		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}

	return validationErrors
}

const builtinConfigSchema = `
#Duration: string & =~"^([0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h))+$" | int & >=0

#Probability: number & >=0 & <=1

#Domain: "civic" | "crime" | "health" | "infrastructure" | "weather" | "culture" |
	"sports" | "business" | "community" | "education" | "transit" | "environment"

#Thresholds: {
	light?:    int & >=0
	moderate?: int & >=0
	heavy?:    int & >=0
}

#Rule: {
	name:    string & =~"^[a-z][a-z0-9_]*$"
	module:  "civic_load" | "cycle_weight" | "pattern" | "migration_drift"
	source?: string
	file?:   string
}

#Config: {
	store?: {
		driver?:            "sqlite" | "memory"
		path?:              string
		max_open_conns?:    int & >=0
		max_idle_conns?:    int & >=0
		conn_max_lifetime?: #Duration
	}

	telemetry?: {
		service_name?:    string & !=""
		service_version?: string
		environment?:     string
		logging?: {
			level?:         "trace" | "debug" | "info" | "warn" | "error" | "fatal"
			format?:        "console" | "json"
			output?:        string
			enable_caller?: bool
			time_format?:   "unix" | "unixms" | "rfc3339"
		}
		tracing?: {
			enabled?:        bool
			exporter?:       "otlp" | "stdout" | "none"
			endpoint?:       string
			sampling_rate?:  #Probability
			export_timeout?: #Duration
			insecure?:       bool
		}
		metrics?: {
			enabled?:        bool
			listen_address?: string
			path?:           string
			namespace?:      string
		}
	}

	recovery?: {
		base?:   #Thresholds
		floors?: #Thresholds
		modifiers?: {
			major_holiday?: int & >=0
			minor_holiday?: int & >=0
			first_friday?:  int & >=0
			creation_day?:  int & >=0
			playoffs?:      int & >=0
			championship?:  int & >=0
			seasons?: {[string]: int & >=0}
		}
	}

	generation?: {
		min_events?:     int & >=0
		max_events?:     int & >=0
		high_chance?:    #Probability
		medium_chance?:  #Probability
		repeat_penalty?: #Probability
		neighborhoods?: [...string & !=""]
		domain_weights?: {[#Domain]: number & >=0}
	}

	mode?: {
		strict?:  bool
		profile?: bool
	}

	rules?: [...#Rule]

	policy?: {
		files?: [...string]
		protected_tables?: [...string]
		max_rows?: int & >=0
		disabled?: [...string]
	}
}
`

const builtinInputsSchema = `
#Domain: "civic" | "crime" | "health" | "infrastructure" | "weather" | "culture" |
	"sports" | "business" | "community" | "education" | "transit" | "environment"

#Event: {
	cycle:         int
	description?:  string
	domain:        #Domain
	severity:      "low" | "medium" | "high"
	neighborhood?: string
}

#Inputs: {
	cycle_id:   int & >=0
	seed?:      int
	timestamp?: string

	calendar?: {
		season?:           string
		holiday?:          string
		holiday_priority?: "" | "none" | "minor" | "major"
		is_first_friday?:  bool
		is_creation_day?:  bool
		sports_season?:    "" | "off" | "regular" | "playoffs" | "championship"
	}

	weather?: {
		type?:   string
		impact?: number & >=0
	}
	weather_mood?:  {...}
	economic_mood?: number
	illness_rate?:  number & >=0

	world_events?: [...#Event]
	audit_issues?: [...{cycle: int, description?: string}]
	story_hooks?: [...{cycle: int, text?: string}]
	texture_triggers?: [...{cycle: int, text?: string}]
	shock_flag?: string

	arcs?: [...{name: string, phase: string, neighborhood?: string}]
	neighborhoods?: [...{
		name:        string
		population?: int & >=0
		arrivals?:   int & >=0
		departures?: int & >=0
	}]
	story_seeds?: [...string]
	bonds?: [...{citizen_a: string, citizen_b: string, kind?: string}]
}
`
