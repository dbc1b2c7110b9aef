package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/utils"
)

// multipartOverhead leaves room for form fields around the file part.
const multipartOverhead = 1 << 20

type CreateBotRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Description  string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
}

func (h *APIHandler) CreateBotHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateBotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	bot, err := h.bots.Create(r.Context(), auth.UserID(r.Context()), req.Name, req.Description, req.SystemPrompt)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

func (h *APIHandler) ListBotsHandler(w http.ResponseWriter, r *http.Request) {
	bots, err := h.bots.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, bots)
}

func (h *APIHandler) GetBotHandler(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (h *APIHandler) DeleteBotHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.bots.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "botID")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bot deleted"})
}

func (h *APIHandler) EmbedTokenHandler(w http.ResponseWriter, r *http.Request) {
	token, err := h.bots.EmbedToken(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandler) BotKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	files, err := h.knowledge.ListForBot(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "botID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// UploadKnowledgeHandler takes a multipart form with a "file" part and an
// optional "bot_id" field.
func (h *APIHandler) UploadKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	tooLarge := apperr.BadRequest(fmt.Sprintf("File exceeds the %s upload limit", utils.HumanSize(h.maxUploadBytes)))
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isTooLarge(err) {
			writeError(w, r, h.log, tooLarge)
			return
		}
		writeError(w, r, h.log, apperr.BadRequest("Invalid multipart form").Wrap(err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.log, apperr.BadRequest("A file is required").Wrap(err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, r, h.log, tooLarge)
			return
		}
		writeError(w, r, h.log, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	entry, err := h.knowledge.Upload(r.Context(), auth.UserID(r.Context()), normalizeBotID(r.FormValue("bot_id")), header.Filename, data)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type RemoteKnowledgeRequest struct {
	URL   string `json:"url" validate:"required,http_url"`
	BotID string `json:"bot_id"`
}

func (h *APIHandler) RegisterRemoteKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	var req RemoteKnowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	entry, err := h.knowledge.RegisterRemote(r.Context(), auth.UserID(r.Context()), normalizeBotID(req.BotID), req.URL)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *APIHandler) ListKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.knowledge.ListMine(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *APIHandler) DeleteKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.knowledge.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "knowledgeID")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted"})
}
