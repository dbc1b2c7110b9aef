package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"aicaas.com/chatbot-backend/internal/auth"
)

type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	BotID       string `json:"bot_id" validate:"required"`
}

type MemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *APIHandler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	group, err := h.groups.Create(r.Context(), auth.UserID(r.Context()), req.Name, req.Description, req.BotID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *APIHandler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *APIHandler) GroupDetailsHandler(w http.ResponseWriter, r *http.Request) {
	details, err := h.groups.Details(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *APIHandler) DeleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "groupID")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Group deleted"})
}

func (h *APIHandler) AddMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.groups.AddMember(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "groupID"), req.Email); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Member added"})
}

func (h *APIHandler) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.groups.RemoveMember(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "groupID"), req.Email); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Member removed"})
}

func (h *APIHandler) LeaveGroupHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.Leave(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "groupID")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Left group"})
}

func (h *APIHandler) GroupKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	files, err := h.groups.Knowledge(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}
