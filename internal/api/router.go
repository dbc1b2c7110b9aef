package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aicaas.com/chatbot-backend/internal/ratelimit"
)

// Limits holds the per-IP limiters for the unauthenticated entry points.
type Limits struct {
	Login      ratelimit.Limiter
	PublicChat ratelimit.Limiter
}

func NewRouter(apiHandler *APIHandler, limits Limits, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Post("/register", apiHandler.RegisterHandler)
		r.With(apiHandler.RateLimitMiddleware(limits.Login)).Post("/login", apiHandler.LoginHandler)
		r.With(apiHandler.RateLimitMiddleware(limits.PublicChat)).Post("/public/chat", apiHandler.PublicChatHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.SessionAuthMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)
			r.Post("/sessions/rotate", apiHandler.RotateSessionHandler)
			r.Get("/me", apiHandler.MeHandler)
			r.Get("/subscription", apiHandler.SubscriptionHandler)
			r.Post("/subscription/upgrade", apiHandler.UpgradeHandler)

			r.Route("/bots", func(r chi.Router) {
				r.Get("/", apiHandler.ListBotsHandler)
				r.Post("/", apiHandler.CreateBotHandler)
				r.Get("/{botID}", apiHandler.GetBotHandler)
				r.Delete("/{botID}", apiHandler.DeleteBotHandler)
				r.Post("/{botID}/embed-token", apiHandler.EmbedTokenHandler)
				r.Get("/{botID}/knowledge", apiHandler.BotKnowledgeHandler)
			})

			r.Route("/knowledge", func(r chi.Router) {
				r.Get("/", apiHandler.ListKnowledgeHandler)
				r.Post("/", apiHandler.UploadKnowledgeHandler)
				r.Post("/remote", apiHandler.RegisterRemoteKnowledgeHandler)
				r.Delete("/{knowledgeID}", apiHandler.DeleteKnowledgeHandler)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", apiHandler.ListGroupsHandler)
				r.Post("/", apiHandler.CreateGroupHandler)
				r.Get("/{groupID}", apiHandler.GroupDetailsHandler)
				r.Delete("/{groupID}", apiHandler.DeleteGroupHandler)
				r.Post("/{groupID}/members", apiHandler.AddMemberHandler)
				r.Delete("/{groupID}/members", apiHandler.RemoveMemberHandler)
				r.Post("/{groupID}/leave", apiHandler.LeaveGroupHandler)
				r.Get("/{groupID}/knowledge", apiHandler.GroupKnowledgeHandler)
			})

			r.Post("/chat", apiHandler.PostMessageHandler)
			r.Get("/chat/history", apiHandler.HistoryHandler)
			r.Delete("/chat/history", apiHandler.ClearHistoryHandler)
		})
	})

	return r
}
