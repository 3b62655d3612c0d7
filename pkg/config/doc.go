// Package config loads cycle kernel configuration and per-cycle inputs.
//
// Files may be written in CUE, YAML, JSON or Starlark; the extension picks
// the format. Every document is converted to JSON, validated against a
// built-in CUE schema ("config" or "inputs") and decoded. Configuration is
// decoded over DefaultConfig, so a file only states what it changes, and
// then checked with go-playground/validator struct tags.
//
// # Configuration File
//
// A minimal YAML configuration:
//
//	store:
//	  driver: sqlite
//	  path: ledger.db
//	telemetry:
//	  logging: {level: debug}
//	recovery:
//	  base: {light: 3, moderate: 6, heavy: 10}
//	rules:
//	  - name: festival_bonus
//	    module: civic_load
//	    file: rules/festival.star
//	policy:
//	  files: [policies]
//	  max_rows: 200
//
// The same in CUE can share values with let:
//
//	let lightAt = 3
//	recovery: base: {light: lightAt, moderate: lightAt + 3, heavy: lightAt + 7}
//
// Starlark configs set top-level globals; names starting with "_" and
// functions are dropped, and getenv(name, default) reads the environment:
//
//	store = {"driver": getenv("CYCLE_STORE", "memory")}
//
// # Errors
//
// Schema failures are returned as ValidationErrors carrying file, line,
// column and the CUE path of each problem.
//
// # Watching
//
// Watcher follows the config file, rule scripts and policy files and
// reports debounced change sets, which cyclectl watch uses to reload.
package config
