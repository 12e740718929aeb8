package flows

import (
	"log/slog"

	"github.com/MikeSquared-Agency/macha/internal/anthropic"
	"github.com/MikeSquared-Agency/macha/internal/config"
	"github.com/MikeSquared-Agency/macha/internal/gemini"
	"github.com/MikeSquared-Agency/macha/internal/openai"
)

// FromConfig picks where flows run. A flow server URL wins; otherwise the
// prompts run in-process on the configured model provider and the returned
// PromptInvoker is non-nil so they can also be served over HTTP.
func FromConfig(cfg config.Config, logger *slog.Logger) (Invoker, *PromptInvoker) {
	if cfg.FlowServerURL != "" {
		logger.Info("using remote flow server", "url", cfg.FlowServerURL)
		return NewHTTPInvoker(cfg.FlowServerURL), nil
	}
	p := NewPromptInvoker(NewCompleter(cfg, logger), logger)
	return p, p
}

// NewCompleter builds the model client named by cfg.LLMProvider. Anything
// other than openai or anthropic runs on Gemini.
func NewCompleter(cfg config.Config, logger *slog.Logger) Completer {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY not set — flow calls will fail")
		}
		logger.Info("openai client ready", "model", cfg.OpenAIModel)
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case "anthropic":
		if cfg.AnthropicKey == "" {
			logger.Warn("ANTHROPIC_API_KEY not set — flow calls will fail")
		}
		logger.Info("anthropic client ready", "model", cfg.ClaudeModel)
		return anthropic.NewClient(cfg.AnthropicKey, cfg.ClaudeModel)
	default:
		if cfg.GoogleAPIKey == "" {
			logger.Warn("GOOGLE_API_KEY not set — flow calls will fail")
		}
		g := gemini.NewClient(cfg.GoogleAPIKey, cfg.Model)
		g.SetBaseURL(cfg.GeminiBaseURL)
		logger.Info("gemini client ready", "model", cfg.Model)
		return g
	}
}
