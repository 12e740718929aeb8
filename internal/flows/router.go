// Package flows routes a user's query to the remote prompt flow that serves
// its topic and normalizes the flow's answer into a single string.
package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Flow names, as registered with the flow server.
const (
	FlowTechGuidance     = "provideTechGuidanceFlow"
	FlowPersonalSupport  = "offerPersonalSupportFlow"
	FlowExplainConcept   = "explainConceptFlow"
	FlowTanglishResponse = "generateTanglishResponseFlow"
)

var (
	ErrEmptyQuery      = errors.New("query is empty")
	ErrUnknownTopic    = errors.New("unknown topic")
	ErrMalformedOutput = errors.New("malformed flow output")
)

// Invoker calls a remote flow by name. Implementations must not retry.
type Invoker interface {
	Invoke(ctx context.Context, flow string, input map[string]any) (map[string]any, error)
}

// Route describes how one topic reaches its flow.
type Route struct {
	Flow   string
	Output string
	input  func(t Topic, text string) map[string]any
}

func queryInput(_ Topic, text string) map[string]any {
	return map[string]any{"query": text}
}

func supportInput(t Topic, text string) map[string]any {
	return map[string]any{"topic": t.Label(), "userBackground": text}
}

var dispatch = map[Topic]Route{
	TopicTech:           {Flow: FlowTechGuidance, Output: "response", input: queryInput},
	TopicCareer:         {Flow: FlowPersonalSupport, Output: "advice", input: supportInput},
	TopicCollege:        {Flow: FlowPersonalSupport, Output: "advice", input: supportInput},
	TopicPersonalGrowth: {Flow: FlowPersonalSupport, Output: "advice", input: supportInput},
	TopicExplain:        {Flow: FlowExplainConcept, Output: "explanation", input: queryInput},
}

// RouteFor returns the dispatch entry of a topic.
func RouteFor(t Topic) (Route, bool) {
	r, ok := dispatch[t]
	return r, ok
}

type Router struct {
	invoker Invoker
	logger  *slog.Logger
}

func NewRouter(invoker Invoker, logger *slog.Logger) *Router {
	return &Router{invoker: invoker, logger: logger}
}

// Ask sends text to the flow serving topic and returns its normalized answer.
func (r *Router) Ask(ctx context.Context, topic Topic, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyQuery
	}
	route, ok := dispatch[topic]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	r.logger.Debug("invoking flow", "topic", string(topic), "flow", route.Flow)

	out, err := r.invoker.Invoke(ctx, route.Flow, route.input(topic, text))
	if err != nil {
		return "", fmt.Errorf("invoke %s: %w", route.Flow, err)
	}
	return OutputText(out, route.Output)
}

// OutputText extracts a non-blank string field from a flow output.
func OutputText(out map[string]any, field string) (string, error) {
	v, ok := out[field]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedOutput, field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is %T, not string", ErrMalformedOutput, field, v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: field %q is blank", ErrMalformedOutput, field)
	}
	return s, nil
}
