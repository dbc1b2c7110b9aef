package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"aicaas.com/chatbot-backend/internal/api"
	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/blob"
	"aicaas.com/chatbot-backend/internal/config"
	"aicaas.com/chatbot-backend/internal/core"
	"aicaas.com/chatbot-backend/internal/extract"
	"aicaas.com/chatbot-backend/internal/llm"
	"aicaas.com/chatbot-backend/internal/logger"
	"aicaas.com/chatbot-backend/internal/metrics"
	"aicaas.com/chatbot-backend/internal/notify"
	"aicaas.com/chatbot-backend/internal/ratelimit"
	"aicaas.com/chatbot-backend/internal/store"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	reapSessions := flag.Bool("reap-sessions", false, "Delete expired sessions and exit")
	flag.Parse()

	cfg, loaded := config.LoadConfig(*envFile)
	log := logger.New(cfg.LogLevel)
	defer log.Sync()
	if !loaded {
		log.Infow("no dotenv file found, using process environment", "env_file", *envFile)
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("failed to initialize database", "error", err)
	}
	defer dbStore.Close()

	authn := auth.NewAuthenticator(dbStore, cfg.SessionTTL)
	notifier, limits, closeRedis := buildRedisBackedParts(cfg, log)
	defer closeRedis()
	defer notifier.Wait()
	accounts := core.NewAccountService(dbStore, authn, notifier, cfg.SignupCredits, time.Now, log)

	if *reapSessions {
		n, err := accounts.ReapExpiredSessions(context.Background())
		if err != nil {
			log.Fatalw("failed to reap sessions", "error", err)
		}
		log.Infow("expired sessions deleted", "count", n)
		return
	}

	blobs, err := buildBlobRouter(cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize blob storage", "error", err)
	}

	gemini, err := llm.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.VisionModel, log)
	if err != nil {
		log.Fatalw("failed to initialize Gemini client", "error", err)
	}
	defer gemini.Close()
	groq := llm.NewOpenAICompat(cfg.GroqBaseURL, cfg.GroqAPIKey)
	if !gemini.Configured() {
		log.Warn("GEMINI_API_KEY not set: general models and vision extraction are unavailable")
	}
	if !groq.Configured() {
		log.Warn("GROQ_API_KEY not set: fast-inference models are unavailable")
	}

	m := metrics.New()
	embed := auth.NewEmbedSigner(cfg.EmbedTokenSecret)
	access := core.NewAccessResolver(dbStore)
	quota := core.NewQuotaEnforcer(dbStore, time.Now)
	retriever := core.NewRetriever(dbStore, blobs, extract.New(gemini), cfg.FetchTimeout, m, log)
	dispatcher := core.NewDispatcher(gemini, groq, cfg.FallbackModel, m, log)
	maxUpload := int64(cfg.MaxUploadMB) << 20
	knowledge := core.NewKnowledgeService(dbStore, access, blobs, maxUpload, log)

	apiHandler := api.NewAPIHandler(api.Services{
		Authn:     authn,
		Accounts:  accounts,
		Bots:      core.NewBotService(dbStore, access, knowledge, embed, time.Now),
		Knowledge: knowledge,
		Groups:    core.NewGroupService(dbStore, access, knowledge),
		Chat: core.NewChatService(dbStore, access, quota, retriever, dispatcher, core.NewConversationLogger(dbStore),
			embed, cfg.DefaultModel, m, log),
	}, maxUpload, log)
	router := api.NewRouter(apiHandler, limits, m.Handler())

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second, // uploads
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infow("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("could not listen", "addr", serverAddr, "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	log.Info("server exited")
}

// buildBlobRouter writes new uploads to MinIO when configured, else to the
// upload directory. Local files stay readable either way.
func buildBlobRouter(cfg config.Config, log *zap.SugaredLogger) (*blob.Router, error) {
	local, err := blob.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	httpFetcher := blob.NewHTTPFetcher(cfg.FetchTimeout, int64(cfg.MaxUploadMB)<<20)

	if cfg.MinioEndpoint == "" {
		router := blob.NewRouter(local, httpFetcher)
		router.Register("file", local)
		return router, nil
	}
	minioStore, err := blob.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		return nil, err
	}
	log.Infow("storing uploads in object storage", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	router := blob.NewRouter(minioStore, httpFetcher)
	router.Register("file", local)
	router.Register("minio", minioStore)
	return router, nil
}

// buildRedisBackedParts uses Redis for the mail queue and the shared rate
// limits when REDIS_ADDR is set, and in-process fallbacks otherwise.
func buildRedisBackedParts(cfg config.Config, log *zap.SugaredLogger) (*notify.Notifier, api.Limits, func()) {
	local := func() api.Limits {
		return api.Limits{
			Login:      ratelimit.NewLocal(cfg.LoginRatePerMin),
			PublicChat: ratelimit.NewLocal(cfg.PublicChatRatePerMin),
		}
	}
	if cfg.RedisAddr == "" {
		return notify.NewNotifier(notify.NewLogMailer(log), log), local(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnw("redis unreachable, using in-process fallbacks", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return notify.NewNotifier(notify.NewLogMailer(log), log), local(), func() {}
	}

	login, err := ratelimit.NewFixedWindow(client, "rl:login:", cfg.LoginRatePerMin, time.Minute)
	if err != nil {
		log.Fatalw("invalid login rate limit", "error", err)
	}
	public, err := ratelimit.NewFixedWindow(client, "rl:public:", cfg.PublicChatRatePerMin, time.Minute)
	if err != nil {
		log.Fatalw("invalid public chat rate limit", "error", err)
	}
	mailer := notify.NewRedisMailer(client, notify.DefaultQueue)
	return notify.NewNotifier(mailer, log), api.Limits{Login: login, PublicChat: public}, func() { client.Close() }
}
