package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/metrics"
)

func TestClassifyModel(t *testing.T) {
	tests := []struct {
		model string
		want  ProviderFamily
	}{
		{"llama-3.3-70b-versatile", FamilyFastInference},
		{"Qwen/qwen3-32b", FamilyFastInference},
		{"MIXTRAL-8x7b", FamilyFastInference},
		{"gemma2-9b-it", FamilyFastInference},
		{"moonshotai/kimi-k2-instruct", FamilyFastInference},
		{"openai/gpt-oss-120b", FamilyFastInference},
		{"allam-2-7b", FamilyFastInference},
		{"gemini-2.5-flash", FamilyGeneral},
		{"gemini-3-pro", FamilyGeneral},
		{"", FamilyGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyModel(tt.model))
		})
	}
}

func TestCombinedPrompt(t *testing.T) {
	p := Prompt{System: "be nice", Context: "docs", User: "hello"}

	assert.Equal(t, "SYSTEM INSTRUCTIONS: be nice\nCONTEXT INFO (Files): docs\n--- \nUSER: hello\nAI:", p.Combined())
}

func newDispatcher(general *fakeGeneral, fast *fakeFast) *Dispatcher {
	return NewDispatcher(general, fast, "gemini-2.5-flash", metrics.New(), zap.NewNop().Sugar())
}

func TestFastFamilyWithoutKeyNeverFallsBack(t *testing.T) {
	general := &fakeGeneral{configured: true}
	d := newDispatcher(general, &fakeFast{configured: false})

	_, err := d.Dispatch(context.Background(), Prompt{User: "hi"}, "llama-3.3-70b")

	require.Error(t, err)
	appErr := apperr.From(err)
	assert.Equal(t, apperr.CodeProviderUnavailable, appErr.Code)
	assert.Equal(t, "Server Groq Key not configured", appErr.Message)
	assert.Empty(t, general.calls)
}

func TestGeneralFamilyWithoutKey(t *testing.T) {
	d := newDispatcher(&fakeGeneral{}, &fakeFast{configured: true})

	_, err := d.Dispatch(context.Background(), Prompt{User: "hi"}, "gemini-3-pro")

	appErr := apperr.From(err)
	assert.Equal(t, apperr.CodeProviderUnavailable, appErr.Code)
	assert.Equal(t, "Server Gemini Key not configured", appErr.Message)
}

func TestFastFamilyGetsSystemAndContextTogether(t *testing.T) {
	fast := &fakeFast{configured: true}
	d := newDispatcher(&fakeGeneral{configured: true}, fast)

	out, err := d.Dispatch(context.Background(), Prompt{System: "sys", Context: "ctx", User: "question"}, "qwen3-32b")

	require.NoError(t, err)
	assert.Equal(t, "fast qwen3-32b", out)
	assert.Equal(t, "sys\nCONTEXT FROM FILES: ctx", fast.system)
	assert.Equal(t, "question", fast.user)
}

func TestGeneralFailureUsesFallbackOnce(t *testing.T) {
	general := &fakeGeneral{configured: true, failModels: map[string]error{"gemini-3-pro": errBoom}}
	d := newDispatcher(general, nil)

	out, err := d.Dispatch(context.Background(), Prompt{User: "hi"}, "gemini-3-pro")

	require.NoError(t, err)
	assert.Equal(t, "[Fallback 2.5] generated by gemini-2.5-flash", out)
	assert.Equal(t, []string{"gemini-3-pro", "gemini-2.5-flash"}, general.calls)
	assert.Equal(t, general.prompts[0], general.prompts[1], "the fallback sees the same prompt")
}

func TestGenerationFailsWhenFallbackFails(t *testing.T) {
	general := &fakeGeneral{configured: true, failModels: map[string]error{
		"gemini-3-pro":     errBoom,
		"gemini-2.5-flash": fmt.Errorf("still down"),
	}}
	d := newDispatcher(general, nil)

	_, err := d.Dispatch(context.Background(), Prompt{User: "hi"}, "gemini-3-pro")

	appErr := apperr.From(err)
	assert.Equal(t, apperr.CodeGenerationFailed, appErr.Code)
	assert.Equal(t, "AI Error: still down", appErr.Message)
	assert.Len(t, general.calls, 2)
}

func TestCanceledGenerationIsNotRetried(t *testing.T) {
	general := &fakeGeneral{configured: true, failModels: map[string]error{"gemini-3-pro": context.Canceled}}
	d := newDispatcher(general, nil)

	_, err := d.Dispatch(context.Background(), Prompt{User: "hi"}, "gemini-3-pro")

	assert.True(t, apperr.Is(err, apperr.CodeGenerationFailed))
	assert.Equal(t, []string{"gemini-3-pro"}, general.calls)
}
