package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/llm"
	"aicaas.com/chatbot-backend/internal/metrics"
)

// ProviderFamily selects the back end that serves a model.
type ProviderFamily int

const (
	FamilyGeneral ProviderFamily = iota
	FamilyFastInference
)

func (f ProviderFamily) String() string {
	switch f {
	case FamilyFastInference:
		return "fast_inference"
	default:
		return "general"
	}
}

const fallbackPrefix = "[Fallback 2.5] "

var fastInferenceKeywords = []string{"llama", "qwen", "mixtral", "gemma", "groq", "moonshot", "openai", "allam"}

// ClassifyModel routes by case-insensitive keyword; anything unrecognized
// belongs to the general family.
func ClassifyModel(model string) ProviderFamily {
	lower := strings.ToLower(model)
	for _, kw := range fastInferenceKeywords {
		if strings.Contains(lower, kw) {
			return FamilyFastInference
		}
	}
	return FamilyGeneral
}

// Prompt is the material for one generation.
type Prompt struct {
	System  string
	Context string
	User    string
}

// Combined is the single instruction block sent to general-family models.
func (p Prompt) Combined() string {
	return fmt.Sprintf("SYSTEM INSTRUCTIONS: %s\nCONTEXT INFO (Files): %s\n--- \nUSER: %s\nAI:", p.System, p.Context, p.User)
}

// GeneralProvider takes one combined prompt.
type GeneralProvider interface {
	Configured() bool
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// FastProvider takes separate system and user turns.
type FastProvider interface {
	Configured() bool
	Chat(ctx context.Context, model, system, user string) (string, error)
}

type Dispatcher struct {
	general       GeneralProvider
	fast          FastProvider
	fallbackModel string
	metrics       *metrics.Metrics
	log           *zap.SugaredLogger
}

func NewDispatcher(general GeneralProvider, fast FastProvider, fallbackModel string, m *metrics.Metrics, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{general: general, fast: fast, fallbackModel: fallbackModel, metrics: m, log: log}
}

// Dispatch generates a reply with the requested model. A general-family
// failure is retried once on the fallback model; the fast family has no
// fallback, and a family without credentials fails before any call.
func (d *Dispatcher) Dispatch(ctx context.Context, p Prompt, model string) (string, error) {
	family := ClassifyModel(model)
	switch family {
	case FamilyFastInference:
		if d.fast == nil || !d.fast.Configured() {
			return "", apperr.ProviderUnavailable("Server Groq Key not configured")
		}
		out, err := d.fast.Chat(ctx, model, p.System+"\nCONTEXT FROM FILES: "+p.Context, p.User)
		if err != nil {
			return "", d.failed(family, err)
		}
		return out, nil

	default:
		if d.general == nil || !d.general.Configured() {
			return "", apperr.ProviderUnavailable("Server Gemini Key not configured")
		}
		prompt := p.Combined()
		out, err := d.general.Generate(ctx, model, prompt)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) {
			return "", d.failed(family, err)
		}
		d.log.Warnw("generation failed, switching to fallback model", "model", model, "fallback", d.fallbackModel, "error", err)
		d.metrics.GenerationFallbacks.Inc()
		out, err = d.general.Generate(ctx, d.fallbackModel, prompt)
		if err != nil {
			return "", d.failed(family, err)
		}
		return fallbackPrefix + out, nil
	}
}

func (d *Dispatcher) failed(family ProviderFamily, err error) error {
	d.metrics.GenerationFailures.WithLabelValues(family.String()).Inc()
	if errors.Is(err, llm.ErrNotConfigured) {
		return apperr.ProviderUnavailable("model provider not configured").Wrap(err)
	}
	return apperr.GenerationFailed(err)
}
