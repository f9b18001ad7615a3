package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
)

// ErrNoCommands indicates the model produced no usable command list.
var ErrNoCommands = errors.New("model produced no usable commands")

type commandEnvelope struct {
	Commands []domain.Command `json:"commands"`
	Notes    string           `json:"notes"`
}

// TranslateCommands turns a natural-language prompt into structured commands
// from the fixed action vocabulary. Unknown actions are dropped rather than
// passed through.
func (c *Client) TranslateCommands(ctx context.Context, prompt string) ([]domain.Command, string, error) {
	raw, err := c.messenger.complete(ctx, buildCommandPrompt(prompt))
	if err != nil {
		return nil, "", err
	}

	candidate, ok := ExtractJSONObject(raw)
	if !ok {
		return nil, "", ErrNoCommands
	}

	var envelope commandEnvelope
	if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNoCommands, err)
	}

	known := make(map[string]bool, len(domain.KnownActions))
	for _, action := range domain.KnownActions {
		known[action] = true
	}

	commands := make([]domain.Command, 0, len(envelope.Commands))
	for _, cmd := range envelope.Commands {
		if known[cmd.Action] {
			commands = append(commands, cmd)
		}
	}
	if len(commands) == 0 {
		return nil, envelope.Notes, ErrNoCommands
	}
	return commands, envelope.Notes, nil
}

func buildCommandPrompt(request string) string {
	var b strings.Builder
	b.WriteString("Translate the operator request below into catalog commands.\n")
	b.WriteString("Allowed actions: ")
	b.WriteString(strings.Join(domain.KnownActions, ", "))
	b.WriteString(".\n")
	b.WriteString("Param keys: product_id (number), since (RFC3339 timestamp), limit (number), ")
	b.WriteString("category, tags (list), seo_title, seo_description, rule (object), name, job_id, ")
	b.WriteString("replace_tags (bool), replace_seo (bool), force (bool).\n\n")
	fmt.Fprintf(&b, "Request: %s\n\n", request)
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"commands": [{"action": "...", "params": {}}], "notes": "..."}`)
	return b.String()
}
