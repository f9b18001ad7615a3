// Package commands maps structured or natural-language requests onto the
// fixed set of catalog operations.
package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/jobs"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/processor"
	"github.com/jonesrussell/catalog-classifier/internal/rules"
)

// Translator turns a natural-language prompt into structured commands.
type Translator interface {
	TranslateCommands(ctx context.Context, prompt string) ([]domain.Command, string, error)
}

// ProductProcessor is the processor surface the interpreter dispatches to.
type ProductProcessor interface {
	ProcessByID(ctx context.Context, productID int64, opts processor.Options) (*processor.Outcome, error)
}

// Request is the command endpoint payload: either explicit commands or a
// prompt to translate.
type Request struct {
	Commands []domain.Command `json:"commands,omitempty"`
	Prompt   string           `json:"prompt,omitempty"`
	DryRun   bool             `json:"dry_run,omitempty"`
}

// Response carries per-command results in request order.
type Response struct {
	OK      bool                   `json:"ok"`
	UsedAI  bool                   `json:"used_ai"`
	Notes   string                 `json:"notes,omitempty"`
	Results []domain.CommandResult `json:"results"`
}

// Interpreter executes command batches. Each command runs independently; one
// failure is reported in its result entry without aborting the rest.
type Interpreter struct {
	proc       ProductProcessor
	queue      *jobs.Queue
	store      *rules.Store
	translator Translator
	logger     logger.Logger
}

// New creates an interpreter. translator may be nil, which disables the
// prompt path.
func New(proc ProductProcessor, queue *jobs.Queue, store *rules.Store, translator Translator, log logger.Logger) *Interpreter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Interpreter{
		proc:       proc,
		queue:      queue,
		store:      store,
		translator: translator,
		logger:     log,
	}
}

// Handle executes the request and reports per-command outcomes.
func (i *Interpreter) Handle(ctx context.Context, req Request) *Response {
	resp := &Response{OK: true}

	commands := req.Commands
	if len(commands) == 0 && req.Prompt != "" {
		if i.translator == nil {
			resp.OK = false
			resp.Notes = "natural-language commands are not configured"
			return resp
		}
		translated, notes, err := i.translator.TranslateCommands(ctx, req.Prompt)
		resp.UsedAI = true
		resp.Notes = notes
		if err != nil {
			resp.OK = false
			if resp.Notes == "" {
				resp.Notes = err.Error()
			}
			return resp
		}
		commands = translated
	}

	for _, cmd := range commands {
		result := i.run(ctx, cmd, req.DryRun)
		if !result.OK {
			resp.OK = false
		}
		resp.Results = append(resp.Results, result)
	}
	return resp
}

// mutating reports whether an action writes anywhere. Preview and the
// listing/status actions are the only reads.
func mutating(action string) bool {
	switch action {
	case domain.ActionPreview, domain.ActionListRules, domain.ActionJobStatus, domain.ActionListJobs:
		return false
	}
	return true
}

func (i *Interpreter) run(ctx context.Context, cmd domain.Command, dryRun bool) domain.CommandResult {
	result := domain.CommandResult{Action: cmd.Action}

	if dryRun && mutating(cmd.Action) {
		result.OK = true
		result.Result = "skipped (dry run)"
		return result
	}

	payload, err := i.dispatch(ctx, cmd)
	if err != nil {
		i.logger.Warn("command failed",
			logger.String("action", cmd.Action),
			logger.Error(err),
		)
		result.Error = err.Error()
		return result
	}
	result.OK = true
	result.Result = payload
	return result
}

func (i *Interpreter) dispatch(ctx context.Context, cmd domain.Command) (any, error) {
	params := parameters(cmd.Params)

	switch cmd.Action {
	case domain.ActionBackfill:
		jobID := i.queue.EnqueueBackfill(domain.JobParams{
			Since: params.str("since"),
			Limit: params.num("limit"),
		})
		return map[string]string{"job_id": jobID}, nil

	case domain.ActionReprocess:
		productID, err := params.productID()
		if err != nil {
			return nil, err
		}
		return i.proc.ProcessByID(ctx, productID, processor.Options{
			Force:       true,
			ReplaceTags: params.boolean("replace_tags"),
			ReplaceSEO:  params.boolean("replace_seo"),
			Source:      "command",
		})

	case domain.ActionSetClassification:
		productID, err := params.productID()
		if err != nil {
			return nil, err
		}
		manual := &domain.Classification{
			Category:       params.str("category"),
			Tags:           params.strs("tags"),
			SEOTitle:       params.str("seo_title"),
			SEODescription: params.str("seo_description"),
		}
		return i.proc.ProcessByID(ctx, productID, processor.Options{
			Force:      true,
			Manual:     manual,
			ReplaceSEO: true,
			Source:     "command",
		})

	case domain.ActionUpdateSEO:
		productID, err := params.productID()
		if err != nil {
			return nil, err
		}
		return i.proc.ProcessByID(ctx, productID, processor.Options{
			Force:      true,
			SEOOnly:    true,
			ReplaceSEO: params.boolean("replace_seo"),
			Source:     "command",
		})

	case domain.ActionPreview:
		productID, err := params.productID()
		if err != nil {
			return nil, err
		}
		return i.proc.ProcessByID(ctx, productID, processor.Options{
			Force:  true,
			DryRun: true,
			Source: "command",
		})

	case domain.ActionListRules:
		return i.store.List(), nil

	case domain.ActionAddRule:
		rule, err := params.rule()
		if err != nil {
			return nil, err
		}
		if err := i.store.Add(rule); err != nil {
			return nil, err
		}
		return "rule added", nil

	case domain.ActionRemoveRule:
		name := params.str("name")
		if name == "" {
			return nil, fmt.Errorf("remove_rule requires a name")
		}
		if err := i.store.Remove(name); err != nil {
			return nil, err
		}
		return "rule removed", nil

	case domain.ActionReloadRules:
		if err := i.store.Reload(); err != nil {
			return nil, err
		}
		return fmt.Sprintf("%d rules loaded", len(i.store.List())), nil

	case domain.ActionJobStatus:
		jobID := params.str("job_id")
		job, ok := i.queue.Status(jobID)
		if !ok {
			return nil, fmt.Errorf("job %s not found", jobID)
		}
		return job, nil

	case domain.ActionListJobs:
		return i.queue.List(params.num("limit")), nil
	}

	return nil, fmt.Errorf("unknown action %q", cmd.Action)
}

// parameters wraps the loosely-typed JSON param map with typed accessors.
type parameters map[string]any

func (p parameters) str(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p parameters) num(key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (p parameters) boolean(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p parameters) strs(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (p parameters) productID() (int64, error) {
	switch v := p["product_id"].(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, fmt.Errorf("product_id is required")
}

// rule decodes the rule object param through JSON so the YAML/JSON shapes
// stay in one place.
func (p parameters) rule() (domain.Rule, error) {
	raw, ok := p["rule"]
	if !ok {
		return domain.Rule{}, fmt.Errorf("add_rule requires a rule object")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("encode rule param: %w", err)
	}
	var rule domain.Rule
	if err := json.Unmarshal(encoded, &rule); err != nil {
		return domain.Rule{}, fmt.Errorf("decode rule param: %w", err)
	}
	return rule, nil
}
