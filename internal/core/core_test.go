package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/blob"
	"aicaas.com/chatbot-backend/internal/extract"
	"aicaas.com/chatbot-backend/internal/metrics"
	"aicaas.com/chatbot-backend/internal/notify"
	"aicaas.com/chatbot-backend/internal/store"
)

type fakeGeneral struct {
	mu         sync.Mutex
	configured bool
	failModels map[string]error
	calls      []string
	prompts    []string
	reply      string
}

func (f *fakeGeneral) Configured() bool { return f.configured }

func (f *fakeGeneral) Generate(_ context.Context, model, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	f.prompts = append(f.prompts, prompt)
	if err := f.failModels[model]; err != nil {
		return "", err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "generated by " + model, nil
}

type fakeFast struct {
	configured bool
	calls      int
	system     string
	user       string
}

func (f *fakeFast) Configured() bool { return f.configured }

func (f *fakeFast) Chat(_ context.Context, model, system, user string) (string, error) {
	f.calls++
	f.system, f.user = system, user
	return "fast " + model, nil
}

// countingFetcher records every fetch before delegating.
type countingFetcher struct {
	mu    sync.Mutex
	inner blob.Fetcher
	count int
}

func (c *countingFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return c.inner.Fetch(ctx, location)
}

func (c *countingFetcher) fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type testEnv struct {
	db        *store.SQLiteStore
	blobs     *blob.LocalStore
	fetcher   *countingFetcher
	general   *fakeGeneral
	fast      *fakeFast
	clock     *testClock
	metrics   *metrics.Metrics
	notifier  *notify.Notifier
	embed     *auth.EmbedSigner
	access    *AccessResolver
	quota     *QuotaEnforcer
	retriever *Retriever
	chat      *ChatService
	accounts  *AccountService
	bots      *BotService
	knowledge *KnowledgeService
	groups    *GroupService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewSQLiteStore(filepath.Join(dir, "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	blobs, err := blob.NewLocalStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	env := &testEnv{
		db:      db,
		blobs:   blobs,
		fetcher: &countingFetcher{inner: blobs},
		general: &fakeGeneral{configured: true, failModels: map[string]error{}},
		fast:    &fakeFast{},
		clock:   &testClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		metrics: metrics.New(),
		embed:   auth.NewEmbedSigner("widget-secret"),
	}
	env.notifier = notify.NewNotifier(notify.NewLogMailer(log), log)
	t.Cleanup(env.notifier.Wait)

	env.access = NewAccessResolver(db)
	env.quota = NewQuotaEnforcer(db, env.clock.Now)
	env.retriever = NewRetriever(db, env.fetcher, extract.New(nil), time.Second, env.metrics, log)
	dispatcher := NewDispatcher(env.general, env.fast, "gemini-2.5-flash", env.metrics, log)
	env.chat = NewChatService(db, env.access, env.quota, env.retriever, dispatcher, NewConversationLogger(db),
		env.embed, "gemini-2.5-flash", env.metrics, log)
	authn := auth.NewAuthenticator(db, time.Hour, auth.WithClock(env.clock.Now), auth.WithHashCost(bcrypt.MinCost))
	env.accounts = NewAccountService(db, authn, env.notifier, 100, env.clock.Now, log)
	env.knowledge = NewKnowledgeService(db, env.access, blobs, 1<<20, log)
	env.bots = NewBotService(db, env.access, env.knowledge, env.embed, env.clock.Now)
	env.groups = NewGroupService(db, env.access, env.knowledge)
	return env
}

func (e *testEnv) user(t *testing.T, email string) *store.User {
	t.Helper()
	u := &store.User{Email: email, FullName: email, PasswordHash: "unused", PlanType: store.PlanFree, Credits: 100}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) bot(t *testing.T, owner *store.User, name, prompt string) *store.Bot {
	t.Helper()
	b, err := e.bots.Create(context.Background(), owner.ID, name, "", prompt)
	require.NoError(t, err)
	return b
}

func (e *testEnv) upload(t *testing.T, owner *store.User, botID *string, name, content string) *store.KnowledgeEntry {
	t.Helper()
	entry, err := e.knowledge.Upload(context.Background(), owner.ID, botID, name, []byte(content))
	require.NoError(t, err)
	return entry
}

var errBoom = errors.New("boom")
