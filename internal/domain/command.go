package domain

// Command actions accepted by the command interpreter. The natural-language
// translation path is constrained to this same vocabulary.
const (
	ActionBackfill          = "backfill"
	ActionReprocess         = "reprocess"
	ActionSetClassification = "set_classification"
	ActionUpdateSEO         = "update_seo"
	ActionPreview           = "preview"
	ActionListRules         = "list_rules"
	ActionAddRule           = "add_rule"
	ActionRemoveRule        = "remove_rule"
	ActionReloadRules       = "reload_rules"
	ActionJobStatus         = "job_status"
	ActionListJobs          = "list_jobs"
)

// KnownActions is the fixed action vocabulary.
var KnownActions = []string{
	ActionBackfill,
	ActionReprocess,
	ActionSetClassification,
	ActionUpdateSEO,
	ActionPreview,
	ActionListRules,
	ActionAddRule,
	ActionRemoveRule,
	ActionReloadRules,
	ActionJobStatus,
	ActionListJobs,
}

// Command is one structured instruction for the interpreter.
type Command struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// CommandResult is the outcome of one executed command. Commands execute
// independently; a failed command is reported here without aborting the rest
// of the batch.
type CommandResult struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
