package api

import (
	"net/http"

	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/core"
)

type PostMessageRequest struct {
	Message string `json:"message" validate:"required"`
	BotID   string `json:"bot_id"`
	Model   string `json:"model"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	reply, err := h.chat.SendMessage(r.Context(), core.ChatRequest{
		UserID:  auth.UserID(r.Context()),
		BotID:   normalizeBotID(req.BotID),
		Message: req.Message,
		Model:   req.Model,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// HistoryHandler reads ?bot_id=; without it the caller's general-assistant
// conversation is returned.
func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chat.History(r.Context(), auth.UserID(r.Context()), normalizeBotID(r.URL.Query().Get("bot_id")))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *APIHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.chat.ClearHistory(r.Context(), auth.UserID(r.Context()), normalizeBotID(r.URL.Query().Get("bot_id")))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

type PublicChatRequest struct {
	Token   string `json:"token"`
	Message string `json:"message" validate:"required"`
}

func (h *APIHandler) PublicChatHandler(w http.ResponseWriter, r *http.Request) {
	var req PublicChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	reply, err := h.chat.PublicChat(r.Context(), req.Token, req.Message)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
