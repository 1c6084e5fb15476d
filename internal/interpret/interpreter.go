package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/skylink-io/skylink/internal/metrics"
	"github.com/skylink-io/skylink/pkg/models"
)

// Error wraps any interpreter failure: provider errors, non-JSON output,
// or an empty sequence. Commands that fail here are rejected before
// validation, with no drone interaction.
type Error struct {
	Provider string
	Raw      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("interpretation failed (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// systemPrompt instructs the model to emit the operation vocabulary as
// strict JSON. The current telemetry snapshot is appended so the model can
// sequence operations from the drone's actual situation.
const systemPrompt = `You are a drone autopilot command interpreter. Translate the operator's
natural-language command into an ordered JSON array of drone operations.

Available operations and their parameters:
- {"op": "takeoff", "params": {"altitude": <meters>}}
- {"op": "move_to", "params": {"x": <m>, "y": <m>, "z": <m>}}
- {"op": "land", "params": {}}
- {"op": "hover", "params": {"duration_secs": <seconds>}}
- {"op": "query", "params": {}}

Rules:
1. The drone must take off before it can move, hover, or land.
2. Break compound commands into the full ordered sequence of operations.
3. Respond with ONLY a JSON object of the form {"intents": [...]}.
4. If the command is not a drone instruction, return {"intents": []}.

Current telemetry: %s

Operator command: %s`

// Interpreter turns operator text into intent sequences.
type Interpreter struct {
	provider Provider
	metrics  *metrics.Metrics
}

// New builds an interpreter over the given provider.
func New(p Provider, m *metrics.Metrics) *Interpreter {
	return &Interpreter{provider: p, metrics: m}
}

type intentEnvelope struct {
	Intents []models.Intent `json:"intents"`
}

// Interpret asks the provider for the intent sequence behind command. The
// telemetry snapshot is embedded in the prompt. Provider output is parsed
// strictly; anything that doesn't decode is an *Error.
func (in *Interpreter) Interpret(ctx context.Context, command string, tel models.Telemetry) ([]models.Intent, error) {
	telJSON, err := json.Marshal(tel)
	if err != nil {
		return nil, &Error{Provider: in.provider.Name(), Err: fmt.Errorf("marshal telemetry: %w", err)}
	}

	prompt := fmt.Sprintf(systemPrompt, telJSON, command)
	raw, err := in.provider.GenerateJSON(ctx, prompt)
	if err != nil {
		in.metrics.ObserveInterpretation(in.provider.Name(), "error")
		return nil, &Error{Provider: in.provider.Name(), Err: err}
	}

	intents, err := parseIntents(raw)
	if err != nil {
		in.metrics.ObserveInterpretation(in.provider.Name(), "unparseable")
		return nil, &Error{Provider: in.provider.Name(), Raw: raw, Err: err}
	}
	if len(intents) == 0 {
		in.metrics.ObserveInterpretation(in.provider.Name(), "empty")
		return nil, &Error{Provider: in.provider.Name(), Raw: raw, Err: fmt.Errorf("command produced no operations")}
	}

	in.metrics.ObserveInterpretation(in.provider.Name(), "ok")
	log.Debug().Str("provider", in.provider.Name()).Int("intents", len(intents)).Msg("command interpreted")
	return intents, nil
}

// parseIntents decodes provider output. Models wrap JSON in code fences
// often enough that stripping them is worth the trouble; beyond that the
// output must decode cleanly.
func parseIntents(raw string) ([]models.Intent, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var env intentEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		// Some models return the bare array despite instructions.
		var bare []models.Intent
		if aerr := json.Unmarshal([]byte(s), &bare); aerr == nil {
			return bare, nil
		}
		return nil, fmt.Errorf("output is not valid intent JSON: %w", err)
	}
	return env.Intents, nil
}
