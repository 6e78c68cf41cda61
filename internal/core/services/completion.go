package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/kaptinlin/jsonschema"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/logger"
	"github.com/custodia-labs/kgraph/internal/retry"
)

// Completer wraps an LLMService with prompt loading, retries and
// schema-checked JSON output.
type Completer struct {
	llm     driven.LLMService
	prompts driven.PromptStore
	policy  retry.Policy
	metrics driven.Metrics
}

// NewCompleter creates a completer. A nil metrics records nothing.
func NewCompleter(llm driven.LLMService, prompts driven.PromptStore, policy retry.Policy, metrics driven.Metrics) *Completer {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &Completer{llm: llm, prompts: prompts, policy: policy, metrics: metrics}
}

// Prompt loads a template and substitutes {{KEY}} placeholders.
func (c *Completer) Prompt(name string, vars map[string]string) (string, error) {
	tmpl, err := c.prompts.Load(name)
	if err != nil {
		return "", err
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl), nil
}

// Text runs a plain completion under the retry policy.
func (c *Completer) Text(ctx context.Context, kind, prompt string, opts driven.GenerateOptions) (string, error) {
	if c.llm == nil {
		return "", domain.ErrLLMUnavailable
	}
	return retry.DoValue(ctx, c.withHooks(kind, c.policy), func(ctx context.Context) (string, error) {
		start := time.Now()
		out, err := c.llm.Generate(ctx, prompt, opts)
		c.metrics.LLMCall(kind, err, time.Since(start))
		if err == nil && strings.TrimSpace(out) == "" {
			err = fmt.Errorf("%w: empty completion", domain.ErrTransient)
		}
		return out, err
	})
}

// Structured asks for a JSON object matching schema and decodes it into out.
// Malformed JSON is repaired when possible; anything that still fails to
// parse or validate counts as a retryable failure. Once attempts run out
// the error wraps domain.ErrInvalidStructuredOutput.
func (c *Completer) Structured(ctx context.Context, kind, prompt string, schema []byte, temperature float64, out any) error {
	if c.llm == nil {
		return domain.ErrLLMUnavailable
	}
	compiled, err := jsonschema.NewCompiler().Compile(schema)
	if err != nil {
		return fmt.Errorf("compile %s schema: %w", kind, err)
	}
	system, err := c.Prompt(driven.PromptStructuredSystem, map[string]string{"SCHEMA": string(schema)})
	if err != nil {
		return err
	}
	messages := []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: system},
		{Role: driven.RoleUser, Content: prompt},
	}

	policy := c.withHooks(kind, c.policy)
	policy.IsRetryable = func(err error) bool {
		return retry.IsTransient(err) || errors.Is(err, domain.ErrInvalidStructuredOutput)
	}

	raw, err := retry.DoValue(ctx, policy, func(ctx context.Context) ([]byte, error) {
		start := time.Now()
		text, err := c.llm.Chat(ctx, messages, driven.ChatOptions{Temperature: temperature, JSONMode: true})
		if err == nil {
			var data []byte
			data, err = decodeStructured(text, compiled)
			c.metrics.LLMCall(kind, err, time.Since(start))
			return data, err
		}
		c.metrics.LLMCall(kind, err, time.Since(start))
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidStructuredOutput, kind, err)
	}
	return nil
}

func (c *Completer) withHooks(kind string, p retry.Policy) retry.Policy {
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.metrics.Retry("llm_" + kind)
		logger.Warn("%s completion attempt %d failed, retrying in %s: %v", kind, attempt, delay, err)
	}
	return p
}

// decodeStructured extracts the JSON object from a completion, repairing it
// if needed, and validates it. It returns canonical JSON bytes.
func decodeStructured(text string, schema *jsonschema.Schema) ([]byte, error) {
	candidate := extractJSON(text)
	if candidate == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", domain.ErrInvalidStructuredOutput)
	}

	var data any
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(candidate)
		if rerr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidStructuredOutput, err)
		}
		if err := json.Unmarshal([]byte(repaired), &data); err != nil {
			return nil, fmt.Errorf("%w: repaired JSON: %w", domain.ErrInvalidStructuredOutput, err)
		}
		logger.Debug("repaired malformed JSON completion")
	}

	if res := schema.Validate(data); !res.IsValid() {
		return nil, fmt.Errorf("%w: response does not match schema", domain.ErrInvalidStructuredOutput)
	}
	return json.Marshal(data)
}

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost {...} span.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	if end := strings.LastIndex(text, "}"); end > start {
		return text[start : end+1]
	}
	// Unterminated object; let the repairer close it.
	return text[start:]
}
