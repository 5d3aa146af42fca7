package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config
// field. The genconfig tool uses it to annotate config.default.toml.
type FieldDoc struct {
	// Comment is shown above the field.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// Docs maps dotted TOML paths ("notify.url", "rules.action") to their
// documentation. Section paths ("notify") document the table header.
var Docs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	"log": {
		Comment: "Daemon log (daemon.log in the data directory).",
	},
	"log.level": {
		Comment: "Minimum level: trace, debug, info, warn, error",
	},
	"log.max_size_mb": {
		Comment: "Rotate the log once it reaches this size.",
	},

	"notify": {
		Comment: "Webhook used by rules with action = \"notify\". Each delivery is POSTed as\nJSON with the fields signal, number, pid, host and time.",
	},
	"notify.url": {
		Comment:      "Empty disables webhooks.",
		Alternatives: []string{`url = "https://hooks.example.com/sigrelay"`},
	},
	"notify.retry_max": {
		Comment: "Retries after a failed POST (5xx response or connection error).",
	},
	"notify.timeout_seconds": {
		Comment: "Timeout for each attempt.",
	},

	"watch": {
		Comment: "Re-apply the rules when this file changes on disk.",
	},
	"watch.enabled":               {},
	"watch.poll_interval_seconds": {Comment: "Used only when filesystem notifications are unavailable."},

	"rules": {
		Comment: "Each rule maps signal names or patterns to an action. When several rules\nmatch the same signal the last one wins. Defining any [[rules]] replaces\nthe built-in set below.",
	},
	"rules.signals": {
		Comment: "Names (\"SIGHUP\", \"hup\"), numbers, or glob patterns (\"SIGUSR*\").",
	},
	"rules.action": {
		Comment: "log, notify, reload, shutdown, ignore, or default",
	},
	"rules.flags": {
		Comment:      "Registration flags for log, notify, reload and shutdown: onstack, restart, oneshot",
		Alternatives: []string{`flags = ["oneshot"]`},
	},
}
