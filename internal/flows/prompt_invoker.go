package flows

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"

	"github.com/bytedance/sonic"
)

var (
	ErrUnknownFlow  = errors.New("unknown flow")
	ErrInvalidInput = errors.New("invalid flow input")
)

// Completer runs one prompt on a language model and returns the raw JSON
// object it produced. fields names the string properties the object must carry.
type Completer interface {
	CompleteJSON(ctx context.Context, system, prompt string, fields []string) (string, error)
}

// Prompt is a flow implemented as a single templated model call.
type Prompt struct {
	Name   string
	Inputs []string
	Output string
	tmpl   *template.Template
}

func mustPrompt(name, text string, output string, inputs ...string) *Prompt {
	return &Prompt{
		Name:   name,
		Inputs: inputs,
		Output: output,
		tmpl:   template.Must(template.New(name).Option("missingkey=error").Parse(text)),
	}
}

// PromptInvoker serves flows locally by rendering their prompt templates and
// running them on a Completer.
type PromptInvoker struct {
	llm     Completer
	prompts map[string]*Prompt
	logger  *slog.Logger
}

func NewPromptInvoker(llm Completer, logger *slog.Logger) *PromptInvoker {
	p := &PromptInvoker{
		llm:     llm,
		prompts: make(map[string]*Prompt),
		logger:  logger,
	}
	p.Register(mustPrompt(FlowTechGuidance, techGuidancePrompt, "response", "query"))
	p.Register(mustPrompt(FlowPersonalSupport, personalSupportPrompt, "advice", "topic", "userBackground"))
	p.Register(mustPrompt(FlowExplainConcept, explainConceptPrompt, "explanation", "query"))
	p.Register(mustPrompt(FlowTanglishResponse, tanglishResponsePrompt, "response", "query"))
	return p
}

// Register adds or replaces a prompt flow.
func (p *PromptInvoker) Register(pr *Prompt) {
	p.prompts[pr.Name] = pr
}

// Flows lists the registered flow names, sorted.
func (p *PromptInvoker) Flows() []string {
	names := make([]string, 0, len(p.prompts))
	for name := range p.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *PromptInvoker) Invoke(ctx context.Context, flow string, input map[string]any) (map[string]any, error) {
	pr, ok := p.prompts[flow]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownFlow, flow)
	}
	for _, field := range pr.Inputs {
		if _, ok := input[field].(string); !ok {
			return nil, fmt.Errorf("%w: %s: field %q must be a string", ErrInvalidInput, flow, field)
		}
	}

	var rendered bytes.Buffer
	if err := pr.tmpl.Execute(&rendered, input); err != nil {
		return nil, fmt.Errorf("render prompt %s: %w", flow, err)
	}

	raw, err := p.llm.CompleteJSON(ctx, personaSystem, rendered.String(), []string{pr.Output})
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", flow, err)
	}

	var out map[string]any
	if err := sonic.UnmarshalString(stripCodeFence(raw), &out); err != nil {
		p.logger.Error("failed to parse flow output", "flow", flow, "error", err, "raw", raw)
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
