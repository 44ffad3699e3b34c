// Package server is the edge of the system: the REST surface for group
// administration and auth, and the websocket gateway for realtime events.
package server

import (
	"chatline/apperrors"
	"chatline/auth"
	"chatline/domain"
	"chatline/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type Handlers struct {
	auths    services.IAuthService
	groups   services.IGroupService
	messages services.IMessageService
	log      *slog.Logger
}

func NewHandlers(log *slog.Logger, auths services.IAuthService, groups services.IGroupService, messages services.IMessageService) *Handlers {
	return &Handlers{
		auths:    auths,
		groups:   groups,
		messages: messages,
		log:      log.With("component", "Handlers"),
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	token, err := h.auths.Register(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "token": token.String()})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	token, err := h.auths.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token.String()})
}

// groupDTO decorates a group with the requester's relationship to it.
type groupDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Members     []string  `json:"members"`
	Admins      []string  `json:"admins"`
	CreatedAt   time.Time `json:"createdAt"`
	Joined      bool      `json:"joined"`
	IsAdmin     bool      `json:"isAdmin"`
}

func toGroupDTO(g domain.Group, requesterID string) groupDTO {
	return groupDTO{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Avatar:      g.Avatar,
		Members:     g.Members,
		Admins:      g.Admins,
		CreatedAt:   g.CreatedAt,
		Joined:      g.IsMember(requesterID),
		IsAdmin:     g.IsAdmin(requesterID),
	}
}

func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	groups, err := h.groups.ListGroups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := lo.Map(groups, func(g domain.Group, _ int) groupDTO {
		return toGroupDTO(g, userID)
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "groups": dtos})
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
}

func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	group, err := h.groups.CreateGroup(r.Context(), userID, req.Name, req.Description, req.Avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "group": toGroupDTO(group, userID)})
}

func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	group, err := h.groups.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": toGroupDTO(group, userID)})
}

func (h *Handlers) JoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	group, err := h.groups.JoinGroup(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": toGroupDTO(group, userID)})
}

func (h *Handlers) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	group, err := h.groups.LeaveGroup(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": toGroupDTO(group, userID)})
}

type memberRequest struct {
	UserID string `json:"userId"`
}

func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, fmt.Errorf("%w: userId is required", apperrors.ErrInvalidInput))
		return
	}
	group, err := h.groups.AddMember(r.Context(), chi.URLParam(r, "id"), userID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": toGroupDTO(group, userID)})
}

func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, fmt.Errorf("%w: userId is required", apperrors.ErrInvalidInput))
		return
	}
	group, err := h.groups.RemoveMember(r.Context(), chi.URLParam(r, "id"), userID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": toGroupDTO(group, userID)})
}

func (h *Handlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	if err := h.groups.DeleteGroup(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) GroupMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	messages, err := h.messages.GroupHistory(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": toMessageDTOs(messages)})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handlers) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}
	message, err := h.messages.SendGroup(r.Context(), userID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": toMessageDTO(message)})
}

// DirectMessages returns the conversation between the requester and the user
// in the path, oldest first.
func (h *Handlers) DirectMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())
	messages, err := h.messages.DirectHistory(r.Context(), userID, chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": toMessageDTOs(messages)})
}

func toMessageDTOs(messages []domain.Message) []messageDTO {
	return lo.Map(messages, func(m domain.Message, _ int) messageDTO {
		return toMessageDTO(m)
	})
}
