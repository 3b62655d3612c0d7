// Package policy vets ledger writes with Open Policy Agent (OPA) Rego
// policies before the persistence executor applies them.
//
// A Guard compiles a set of policies, each a Rego module defining a deny
// set, and evaluates them against every write intent. A deny entry is
// either a message string or an object with "message" and "severity";
// error and critical violations deny the write, anything else is logged.
//
// Policies see this input document:
//
//	{
//	  "intent":   {"id", "kind", "destination", "address", "rows", "width",
//	               "values", "priority", "reason", "domain", "bucket"},
//	  "settings": {"protected_tables", "max_rows"}
//	}
//
// # Usage
//
//	guard, err := policy.NewGuard(ctx, policy.DefaultConfig(), logger)
//	if err != nil {
//	    return err
//	}
//	exec := engine.NewExecutor(store, engine.WithGuard(guard))
//
// # Built-in Policies
//
//   - protected-tables: protected tables accept appends only
//   - payload-size: an intent carries at most settings.max_rows rows
//   - write-shape: a cell intent carries exactly one value
//   - missing-reason: warns when an intent has no reason
//
// Extra policies are loaded from .rego files (named after the file,
// severity error) or .json files holding a Policy document.
package policy
