package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/core"
	"aicaas.com/chatbot-backend/internal/store"
)

// Services bundles the core services the handlers call into.
type Services struct {
	Authn     *auth.Authenticator
	Accounts  *core.AccountService
	Bots      *core.BotService
	Knowledge *core.KnowledgeService
	Groups    *core.GroupService
	Chat      *core.ChatService
}

type APIHandler struct {
	authn          *auth.Authenticator
	accounts       *core.AccountService
	bots           *core.BotService
	knowledge      *core.KnowledgeService
	groups         *core.GroupService
	chat           *core.ChatService
	maxUploadBytes int64
	log            *zap.SugaredLogger
}

func NewAPIHandler(svc Services, maxUploadBytes int64, log *zap.SugaredLogger) *APIHandler {
	return &APIHandler{
		authn:          svc.Authn,
		accounts:       svc.Accounts,
		bots:           svc.Bots,
		knowledge:      svc.Knowledge,
		groups:         svc.Groups,
		chat:           svc.Chat,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"full_name" validate:"max=200"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	user, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *store.User `json:"user"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	issued, user, err := h.accounts.Login(r.Context(), req.Email, req.Password, clientMeta(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: issued.Credential, ExpiresAt: issued.Session.ExpiresAt, User: user})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), r.Header.Get("Authorization")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.log.Infow("session revoked", "user_id", auth.UserID(r.Context()), "session_id", auth.SessionID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *APIHandler) RotateSessionHandler(w http.ResponseWriter, r *http.Request) {
	issued, err := h.accounts.Rotate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": issued.Credential, "expires_at": issued.Session.ExpiresAt})
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) SubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := h.accounts.Subscription(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *APIHandler) UpgradeHandler(w http.ResponseWriter, r *http.Request) {
	expires, err := h.accounts.Upgrade(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": store.PlanPro, "expires_at": expires})
}
