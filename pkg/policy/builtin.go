package policy

// BuiltinPolicies returns the policies every guard starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectedTablesPolicy(),
		payloadSizePolicy(),
		writeShapePolicy(),
		missingReasonPolicy(),
	}
}

// protectedTablesPolicy keeps protected tables append-only.
func protectedTablesPolicy() Policy {
	return Policy{
		Name:        "protected-tables",
		Description: "Protected tables only accept appended rows",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"history"},
		Rego: `package cyclekernel.guard.protected

deny contains violation if {
	some table in input.settings.protected_tables
	input.intent.destination == table
	input.intent.kind != "append"
	violation := {
		"message": sprintf("%s is append-only, %s writes are not allowed", [table, input.intent.kind]),
		"severity": "error",
	}
}
`,
	}
}

// payloadSizePolicy caps the rows a single intent may carry.
func payloadSizePolicy() Policy {
	return Policy{
		Name:        "payload-size",
		Description: "Rejects intents carrying more rows than settings.max_rows",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"limits"},
		Rego: `package cyclekernel.guard.size

deny contains violation if {
	input.settings.max_rows > 0
	input.intent.rows > input.settings.max_rows
	violation := {
		"message": sprintf("intent carries %d rows, limit is %d", [input.intent.rows, input.settings.max_rows]),
		"severity": "error",
	}
}
`,
	}
}

// writeShapePolicy rejects cell intents that are not a single value.
func writeShapePolicy() Policy {
	return Policy{
		Name:        "write-shape",
		Description: "Cell intents carry exactly one value",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"shape"},
		Rego: `package cyclekernel.guard.shape

deny contains violation if {
	input.intent.kind == "cell"
	input.intent.rows * input.intent.width != 1
	violation := {
		"message": sprintf("cell write must carry one value, got %dx%d", [input.intent.rows, input.intent.width]),
		"severity": "error",
	}
}
`,
	}
}

// missingReasonPolicy warns about intents queued without a reason.
func missingReasonPolicy() Policy {
	return Policy{
		Name:        "missing-reason",
		Description: "Warns when an intent has no reason attached",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"audit"},
		Rego: `package cyclekernel.guard.reason

deny contains msg if {
	input.intent.reason == ""
	msg := sprintf("%s write to %s has no reason", [input.intent.kind, input.intent.destination])
}
`,
	}
}
