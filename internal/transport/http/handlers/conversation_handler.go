package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/service"
	"github.com/vedran77/huddle/internal/transport/http/middleware"
)

type ConversationHandler struct {
	conversationService *service.ConversationService
	log                 zerolog.Logger
}

func NewConversationHandler(conversationService *service.ConversationService, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		log:                 log.With().Str("handler", "conversations").Logger(),
	}
}

// Open returns the caller's conversation with another member of the server,
// creating it on first use.
func (h *ConversationHandler) Open(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	conv, err := h.conversationService.GetOrCreateForUser(r.Context(),
		identity.UserID, chi.URLParam(r, "serverID"), chi.URLParam(r, "memberID"))
	if err != nil {
		writeServiceError(w, h.log, "open conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	convs, err := h.conversationService.ListForUser(r.Context(), identity.UserID, chi.URLParam(r, "serverID"))
	if err != nil {
		writeServiceError(w, h.log, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}
