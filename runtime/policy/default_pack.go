package policy

// DefaultPackSource is a conservative baseline policy pack: everything is
// allowed at low risk except tools whose name matches a destructive verb,
// which are blocked outright. Tenants are expected to supply their own
// pack; this one exists so the runtime has sane behavior with none
// configured.
const DefaultPackSource = `package plannerd.policy

default decision := {
	"outcome": "allow",
	"risk_class": "low",
	"reason_code": "default_allow",
}

blocked_tools := {"delete_all", "drop_database", "wipe_tenant"}

decision := {
	"outcome": "block",
	"risk_class": "high",
	"reason_code": "destructive_tool",
	"message": sprintf("tool %q is blocked by the default policy pack", [input.toolName]),
} if {
	input.intentType == "tool_call"
	blocked_tools[input.toolName]
}

decision := {
	"outcome": "allow",
	"risk_class": "medium",
	"reason_code": "write_tool",
} if {
	input.intentType == "tool_call"
	not blocked_tools[input.toolName]
	startswith(input.toolName, "write_")
}
`

// DefaultPackRef identifies DefaultPackSource for PolicyDecision records.
var DefaultPackRef = PackRef{ID: "default", Version: "v1"}
