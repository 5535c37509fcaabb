package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/service"
	"github.com/vedran77/huddle/internal/transport/http/middleware"
	"github.com/vedran77/huddle/pkg/validator"
)

// RoomAccess resolves the member a user acts as inside a room.
type RoomAccess interface {
	ResolveMember(ctx context.Context, userID string, kind domain.ParentKind, roomID string) (*domain.Member, error)
}

// MessageHandler serves one parent kind: channel messages or direct
// messages. The routes are the same shape for both.
type MessageHandler struct {
	messageService *service.MessageService
	access         RoomAccess
	log            zerolog.Logger
}

func NewMessageHandler(messageService *service.MessageService, access RoomAccess, log zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		access:         access,
		log:            log.With().Str("handler", string(messageService.Kind())+"_messages").Logger(),
	}
}

type SendMessageRequest struct {
	Content string  `json:"content" validate:"max=4000"`
	FileURL *string `json:"file_url,omitempty" validate:"omitempty,url"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

type ReactionResponse struct {
	Success   bool     `json:"success"`
	Reactions []string `json:"reactions"`
}

func (h *MessageHandler) kind() domain.ParentKind {
	return h.messageService.Kind()
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	parentID := chi.URLParam(r, "id")

	var input SendMessageRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidArgument, "Invalid request body")
		return
	}
	if errs := validator.Struct(input); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	member, err := h.access.ResolveMember(r.Context(), identity.UserID, h.kind(), parentID)
	if err != nil {
		writeServiceError(w, h.log, "send message", err)
		return
	}

	msg, err := h.messageService.Append(r.Context(), parentID, member.ID, input.Content, input.FileURL)
	if err != nil {
		writeServiceError(w, h.log, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	parentID := chi.URLParam(r, "id")

	if _, err := h.access.ResolveMember(r.Context(), identity.UserID, h.kind(), parentID); err != nil {
		writeServiceError(w, h.log, "list messages", err)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			writeError(w, http.StatusBadRequest, domain.CodeInvalidArgument, "Invalid limit")
			return
		}
		limit = l
	}

	resp, err := h.messageService.List(r.Context(), parentID, r.URL.Query().Get("before"), limit)
	if err != nil {
		writeServiceError(w, h.log, "list messages", err)
		return
	}
	for i := range resp.Messages {
		resp.Messages[i] = *resp.Messages[i].Redacted()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var input EditMessageRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidArgument, "Invalid request body")
		return
	}
	if errs := validator.Struct(input); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	_, member, ok := h.messageWithMember(w, r, "edit message")
	if !ok {
		return
	}

	msg, err := h.messageService.Edit(r.Context(), chi.URLParam(r, "id"), member.ID, input.Content)
	if err != nil {
		writeServiceError(w, h.log, "edit message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, member, ok := h.messageWithMember(w, r, "delete message")
	if !ok {
		return
	}

	msg, err := h.messageService.SoftDelete(r.Context(), chi.URLParam(r, "id"), member)
	if err != nil {
		writeServiceError(w, h.log, "delete message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg.Redacted())
}

// React toggles an emoji on the message.
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	var input ReactionRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidArgument, "Invalid request body")
		return
	}
	if _, err := validator.NormalizeEmoji(input.Emoji); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidArgument, "Emoji must be between 1 and 10 characters")
		return
	}

	if _, _, ok := h.messageWithMember(w, r, "toggle reaction"); !ok {
		return
	}

	res, err := h.messageService.ToggleReaction(r.Context(), chi.URLParam(r, "id"), input.Emoji)
	if err != nil {
		writeServiceError(w, h.log, "toggle reaction", err)
		return
	}

	writeJSON(w, http.StatusOK, ReactionResponse{Success: true, Reactions: res.Message.Reactions})
}

// messageWithMember loads the message named in the path and the caller's
// member in its room, writing the error response itself on failure.
func (h *MessageHandler) messageWithMember(w http.ResponseWriter, r *http.Request, op string) (*domain.Message, *domain.Member, bool) {
	identity := middleware.GetIdentity(r.Context())

	msg, err := h.messageService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return nil, nil, false
	}

	member, err := h.access.ResolveMember(r.Context(), identity.UserID, h.kind(), msg.ParentID)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return nil, nil, false
	}
	return msg, member, true
}
