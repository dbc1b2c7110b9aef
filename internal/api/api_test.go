package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/blob"
	"aicaas.com/chatbot-backend/internal/core"
	"aicaas.com/chatbot-backend/internal/extract"
	"aicaas.com/chatbot-backend/internal/llm"
	"aicaas.com/chatbot-backend/internal/metrics"
	"aicaas.com/chatbot-backend/internal/notify"
	"aicaas.com/chatbot-backend/internal/ratelimit"
	"aicaas.com/chatbot-backend/internal/store"
)

type stubGeneral struct {
	mu      sync.Mutex
	prompts []string
}

func (s *stubGeneral) Configured() bool { return true }

func (s *stubGeneral) Generate(_ context.Context, _, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return "Refunds are accepted within 30 days.", nil
}

func (s *stubGeneral) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

type countingFetcher struct {
	inner blob.Fetcher
	n     atomic.Int64
}

func (c *countingFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	c.n.Add(1)
	return c.inner.Fetch(ctx, location)
}

type testServer struct {
	*httptest.Server
	general *stubGeneral
	fetcher *countingFetcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	log := zap.NewNop().Sugar()

	db, err := store.NewSQLiteStore(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	local, err := blob.NewLocalStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	blobs := blob.NewRouter(local, blob.NewHTTPFetcher(time.Second, 1<<20))
	blobs.Register("file", local)

	m := metrics.New()
	general := &stubGeneral{}
	fetcher := &countingFetcher{inner: blobs}
	embed := auth.NewEmbedSigner("widget-secret")
	notifier := notify.NewNotifier(notify.NewLogMailer(log), log)
	t.Cleanup(notifier.Wait)

	access := core.NewAccessResolver(db)
	quota := core.NewQuotaEnforcer(db, nil)
	retriever := core.NewRetriever(db, fetcher, extract.New(nil), time.Second, m, log)
	// No Groq key: the fast family is unconfigured.
	dispatcher := core.NewDispatcher(general, llm.NewOpenAICompat("https://groq.invalid/openai/v1", ""), "gemini-2.5-flash", m, log)
	authn := auth.NewAuthenticator(db, time.Hour, auth.WithHashCost(bcrypt.MinCost))
	knowledge := core.NewKnowledgeService(db, access, blobs, 1<<20, log)

	handler := NewAPIHandler(Services{
		Authn:     authn,
		Accounts:  core.NewAccountService(db, authn, notifier, 100, nil, log),
		Bots:      core.NewBotService(db, access, knowledge, embed, nil),
		Knowledge: knowledge,
		Groups:    core.NewGroupService(db, access, knowledge),
		Chat: core.NewChatService(db, access, quota, retriever, dispatcher, core.NewConversationLogger(db),
			embed, "gemini-2.5-flash", m, log),
	}, 1<<20, log)
	router := NewRouter(handler, Limits{Login: ratelimit.NewLocal(5), PublicChat: ratelimit.NewLocal(5)}, m.Handler())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, general: general, fetcher: fetcher}
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func (s *testServer) send(t *testing.T, req *http.Request, token string) (int, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return s.send(t, req, token)
}

func (s *testServer) upload(t *testing.T, token, botID, filename, content string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if botID != "" {
		require.NoError(t, mw.WriteField("bot_id", botID))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/knowledge", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(t, req, token)
}

// signup registers and logs in, returning the bearer token.
func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	status, _ := s.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"email": email, "password": "correct-horse", "full_name": "Test User",
	})
	require.Equal(t, http.StatusCreated, status)
	status, env := s.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusOK, status)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	return login.Token
}

func (s *testServer) createBot(t *testing.T, token, name, prompt string) store.Bot {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/bots", token, map[string]string{"name": name, "system_prompt": prompt})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var bot store.Bot
	require.NoError(t, json.Unmarshal(env.Data, &bot))
	return bot
}

func TestHelperBotEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signup(t, "owner@example.com")
	bot := srv.createBot(t, token, "Helper", "You are a support agent.")

	status, env := srv.upload(t, token, bot.ID, "policy.txt", "refund policy: 30 days")
	require.Equal(t, http.StatusCreated, status, env.Message)

	status, env = srv.do(t, http.MethodPost, "/api/chat", token, map[string]string{
		"message": "what is the refund policy", "bot_id": bot.ID,
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	var reply core.ChatReply
	require.NoError(t, json.Unmarshal(env.Data, &reply))
	assert.Equal(t, "Helper", reply.BotName)
	assert.Equal(t, "Refunds are accepted within 30 days.", reply.Response)

	prompts := srv.general.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "refund policy: 30 days")
	assert.Contains(t, prompts[0], "You are a support agent.")

	status, env = srv.do(t, http.MethodGet, "/api/chat/history?bot_id="+bot.ID, token, nil)
	require.Equal(t, http.StatusOK, status)
	var history []store.Message
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 2)
	assert.Equal(t, store.RoleUser, history[0].Role)
	assert.Equal(t, "what is the refund policy", history[0].Content)
	assert.Equal(t, store.RoleAI, history[1].Role)
	assert.Equal(t, reply.Response, history[1].Content)
	for _, m := range history {
		require.NotNil(t, m.BotID)
		assert.Equal(t, bot.ID, *m.BotID)
	}
}

func TestStrangerIsForbiddenBeforeAnyFetch(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.signup(t, "owner@example.com")
	stranger := srv.signup(t, "stranger@example.com")
	bot := srv.createBot(t, owner, "Helper", "")
	status, _ := srv.upload(t, owner, bot.ID, "policy.txt", "refund policy: 30 days")
	require.Equal(t, http.StatusCreated, status)

	status, env := srv.do(t, http.MethodPost, "/api/chat", stranger, map[string]string{
		"message": "what is the refund policy", "bot_id": bot.ID,
	})

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "FORBIDDEN", env.Code)
	assert.Zero(t, srv.fetcher.n.Load())
	assert.Empty(t, srv.general.calls())

	status, _ = srv.do(t, http.MethodGet, "/api/bots/"+bot.ID+"/knowledge", stranger, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = srv.do(t, http.MethodDelete, "/api/chat/history?bot_id="+bot.ID, stranger, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestLlamaWithoutFastProviderIsUnavailable(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signup(t, "a@example.com")

	status, env := srv.do(t, http.MethodPost, "/api/chat", token, map[string]string{
		"message": "hi", "model": "llama-3.3-70b-versatile", "bot_id": "null",
	})

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "PROVIDER_UNAVAILABLE", env.Code)
	assert.Equal(t, "Server Groq Key not configured", env.Message)
	assert.Empty(t, srv.general.calls())
}

func TestUnauthenticatedResponsesAreUniform(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signup(t, "a@example.com")
	id, secret, ok := auth.ParseCredential(token)
	require.True(t, ok)
	altered := id + ":" + secret[:len(secret)-1] + flip(secret[len(secret)-1])

	var messages []string
	for _, credential := range []string{"", "garbage", altered, "00000000-0000-0000-0000-000000000000:" + secret} {
		status, env := srv.do(t, http.MethodGet, "/api/me", credential, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "UNAUTHENTICATED", env.Code)
		messages = append(messages, env.Message)
	}
	for _, m := range messages {
		assert.Equal(t, messages[0], m)
	}

	status, _ := srv.do(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func flip(c byte) string {
	if c == 'a' {
		return "b"
	}
	return "a"
}

func TestRotateAndLogout(t *testing.T) {
	srv := newTestServer(t)
	old := srv.signup(t, "a@example.com")

	status, env := srv.do(t, http.MethodPost, "/api/sessions/rotate", old, nil)
	require.Equal(t, http.StatusOK, status)
	var rotated struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rotated))

	status, _ = srv.do(t, http.MethodGet, "/api/me", old, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = srv.do(t, http.MethodGet, "/api/me", rotated.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = srv.do(t, http.MethodPost, "/api/logout", rotated.Token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = srv.do(t, http.MethodGet, "/api/me", rotated.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginIsRateLimited(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]string{"email": "ghost@example.com", "password": "nope-nope"}

	for i := 0; i < 5; i++ {
		status, env := srv.do(t, http.MethodPost, "/api/login", "", body)
		require.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid email or password", env.Message)
	}
	status, env := srv.do(t, http.MethodPost, "/api/login", "", body)

	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", env.Code)
}

func TestQuotaExceededCarriesLimit(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signup(t, "a@example.com")
	for i := 0; i < 10; i++ {
		status, env := srv.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hi"})
		require.Equal(t, http.StatusOK, status, env.Message)
	}

	status, env := srv.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hi"})

	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "QUOTA_EXCEEDED", env.Code)
	assert.JSONEq(t, `{"limit":10}`, string(env.Details))

	status, env = srv.do(t, http.MethodGet, "/api/subscription", token, nil)
	require.Equal(t, http.StatusOK, status)
	var sub core.Subscription
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	assert.Equal(t, 10, sub.Usage)
	assert.Equal(t, 100, sub.Percent)
}

func TestGroupSharingOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.signup(t, "owner@example.com")
	member := srv.signup(t, "member@example.com")
	bot := srv.createBot(t, owner, "Helper", "")

	status, env := srv.do(t, http.MethodPost, "/api/groups", owner, map[string]string{"name": "team", "bot_id": bot.ID})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var group store.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))

	status, _ = srv.do(t, http.MethodPost, "/api/groups/"+group.ID+"/members", owner, map[string]string{"email": "member@example.com"})
	require.Equal(t, http.StatusCreated, status)

	status, env = srv.do(t, http.MethodPost, "/api/chat", member, map[string]string{"message": "hello", "bot_id": bot.ID})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, _ = srv.do(t, http.MethodDelete, "/api/bots/"+bot.ID, member, nil)
	assert.Equal(t, http.StatusForbidden, status)

	for i := 0; i < 2; i++ {
		status, _ = srv.do(t, http.MethodDelete, "/api/groups/"+group.ID+"/members", owner, map[string]string{"email": "member@example.com"})
		assert.Equal(t, http.StatusOK, status)
	}
	status, _ = srv.do(t, http.MethodPost, "/api/chat", member, map[string]string{"message": "hello", "bot_id": bot.ID})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestPublicChatOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.signup(t, "owner@example.com")
	bot := srv.createBot(t, owner, "Widget", "")

	status, env := srv.do(t, http.MethodPost, "/api/bots/"+bot.ID+"/embed-token", owner, nil)
	require.Equal(t, http.StatusOK, status)
	var minted struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &minted))

	status, env = srv.do(t, http.MethodPost, "/api/public/chat", "", map[string]string{"token": minted.Token, "message": "hi"})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = srv.do(t, http.MethodPost, "/api/public/chat", "", map[string]string{"token": "bogus", "message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", env.Code)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signup(t, "a@example.com")

	status, env := srv.upload(t, token, "", "big.txt", strings.Repeat("x", 1<<20+10))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "upload limit")
}

func TestInsufficientCreditsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signup(t, "a@example.com")
	srv.createBot(t, token, "One", "")
	srv.createBot(t, token, "Two", "")

	status, env := srv.do(t, http.MethodPost, "/api/bots", token, map[string]string{"name": "Three"})

	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "INSUFFICIENT_CREDITS", env.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signup(t, "a@example.com")
	status, _ := srv.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, status)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `chat_requests_total{outcome="ok"} 1`)
}

func TestRemoteDocumentIsFetchedAtChatTime(t *testing.T) {
	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/faq.txt" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "shipping takes 3 days")
	}))
	defer docs.Close()

	srv := newTestServer(t)
	token := srv.signup(t, "owner@example.com")
	bot := srv.createBot(t, token, "Helper", "")

	status, env := srv.do(t, http.MethodPost, "/api/knowledge/remote", token, map[string]string{
		"url": docs.URL + "/faq.txt", "bot_id": bot.ID,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var entry store.KnowledgeEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, "faq.txt", entry.Filename)
	assert.Equal(t, docs.URL+"/faq.txt", entry.Location)

	status, env = srv.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "how long is shipping", "bot_id": bot.ID})
	require.Equal(t, http.StatusOK, status, env.Message)
	prompts := srv.general.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "shipping takes 3 days")

	status, _ = srv.do(t, http.MethodPost, "/api/knowledge/remote", token, map[string]string{"url": "ftp://example.com/faq.txt"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, env = srv.do(t, http.MethodPost, "/api/knowledge/remote", token, map[string]string{"url": docs.URL + "/sheet.xlsx"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Unsupported file format: .xlsx", env.Message)

	status, _ = srv.do(t, http.MethodDelete, "/api/knowledge/"+entry.ID, token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRequestBodiesAreValidated(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"email": "not-an-email", "password": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", env.Code)
	assert.JSONEq(t, `{"email":"must be a valid email","password":"must be at least 6 characters"}`, string(env.Details))

	token := srv.signup(t, "a@example.com")
	status, env = srv.do(t, http.MethodPost, "/api/groups", token, map[string]string{"name": "team"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid bot_id: is required", env.Message)

	status, env = srv.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"message":"is required"}`, string(env.Details))
	assert.Empty(t, srv.general.calls())
}

func TestNormalizeBotID(t *testing.T) {
	for _, raw := range []string{"", "null", "undefined", "  "} {
		assert.Nil(t, normalizeBotID(raw), raw)
	}
	got := normalizeBotID(" abc ")
	require.NotNil(t, got)
	assert.Equal(t, "abc", *got)
}
