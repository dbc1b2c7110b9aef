package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenAICompatChat(t *testing.T) {
	var got oaiChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"30 days"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompat(srv.URL+"/v1/", "gsk-test")
	out, err := c.Chat(context.Background(), "llama-3.3-70b", "be brief", "refund?")

	require.NoError(t, err)
	assert.Equal(t, "30 days", out)
	assert.Equal(t, "llama-3.3-70b", got.Model)
	assert.Equal(t, 4096, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, oaiMessage{Role: "system", Content: "be brief"}, got.Messages[0])
	assert.Equal(t, oaiMessage{Role: "user", Content: "refund?"}, got.Messages[1])
}

func TestOpenAICompatSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"model does not exist"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAICompat(srv.URL, "k").Chat(context.Background(), "nope", "", "hi")

	assert.ErrorContains(t, err, "model does not exist")
}

func TestUnconfiguredClients(t *testing.T) {
	ctx := context.Background()

	c := NewOpenAICompat("https://example.invalid", "  ")
	assert.False(t, c.Configured())
	_, err := c.Chat(ctx, "llama", "", "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)

	g, err := NewGemini(ctx, "", "gemini-2.5-flash", zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.False(t, g.Configured())
	_, err = g.Generate(ctx, "gemini-2.5-flash", "hi")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.ExtractText(ctx, []byte("x"), "image/png", "read")
	assert.ErrorIs(t, err, ErrNotConfigured)
	g.Close()
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("refund "), genai.Text("in 30 days")}},
	}}}
	out, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, "refund in 30 days", out)

	_, err = responseText(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}
