package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
	"neurobridge/internal/handler/sse"
	"neurobridge/internal/httputil"
	chatService "neurobridge/internal/service/chat"
)

// ChatHandler serves the conversation REST surface and the per-conversation
// SSE stream.
type ChatHandler struct {
	sessions  *chatService.SessionRegistry
	sseConfig *sse.Config
	logger    *slog.Logger
}

func NewChatHandler(sessions *chatService.SessionRegistry, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		sessions:  sessions,
		sseConfig: sse.DefaultConfig(),
		logger:    logger,
	}
}

// RegisterRoutes registers all conversation routes on the mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/conversations", h.CreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", h.GetConversation)
	mux.HandleFunc("POST /api/conversations/{id}/messages", h.SubmitMessage)
	mux.HandleFunc("POST /api/conversations/{id}/messages/{tempId}/retry", h.RetryMessage)
	mux.HandleFunc("POST /api/conversations/{id}/cancel", h.CancelTurn)
	mux.HandleFunc("GET /api/conversations/{id}/stream", h.Stream)
}

type createConversationRequest struct {
	ChildID     string `json:"child_id"`
	CaregiverID string `json:"caregiver_id"`
}

func (r createConversationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ChildID, validation.Required),
		validation.Field(&r.CaregiverID, validation.Required),
	)
}

// CreateConversation handles POST /api/conversations
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv := &chat.Conversation{
		ID:          uuid.NewString(),
		ChildID:     req.ChildID,
		CaregiverID: req.CaregiverID,
		CreatedAt:   time.Now(),
	}
	if err := h.sessions.NewConversation(r.Context(), conv); err != nil {
		h.respondDomainError(w, err, "create conversation")
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, conv)
}

// GetConversation handles GET /api/conversations/{id}
//
// Returns the live in-memory snapshot when a session exists, so clients that
// reconnect mid-turn see pending messages and partial assistant content.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	session, err := h.sessions.GetOrCreate(r.Context(), conversationID)
	if err != nil {
		h.respondDomainError(w, err, "load conversation")
		return
	}

	snapshot := session.Snapshot()
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": snapshot,
		"state":        session.State(),
	})
}

type submitMessageRequest struct {
	Content string `json:"content"`
}

// SubmitMessage handles POST /api/conversations/{id}/messages
//
// The message is applied optimistically and the assistant turn starts before
// the write confirms; the response carries the temp id the client correlates
// confirmation events against.
func (h *ChatHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req submitMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessions.GetOrCreate(r.Context(), conversationID)
	if err != nil {
		h.respondDomainError(w, err, "load conversation")
		return
	}

	msg, err := session.Submit(r.Context(), req.Content)
	if err != nil {
		h.respondDomainError(w, err, "submit message")
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": msg,
	})
}

// RetryMessage handles POST /api/conversations/{id}/messages/{tempId}/retry
func (h *ChatHandler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	tempID := r.PathValue("tempId")

	session, err := h.sessions.GetOrCreate(r.Context(), conversationID)
	if err != nil {
		h.respondDomainError(w, err, "load conversation")
		return
	}

	if err := session.Retry(r.Context(), tempID); err != nil {
		h.respondDomainError(w, err, "retry message")
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, map[string]interface{}{
		"temp_id": tempID,
	})
}

// CancelTurn handles POST /api/conversations/{id}/cancel
//
// Cancelling an idle conversation is a no-op, not an error, so clients can
// fire-and-forget on navigation away.
func (h *ChatHandler) CancelTurn(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	session, exists := h.sessions.Get(conversationID)
	if !exists {
		httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"cancelled": false,
		})
		return
	}

	wasStreaming := session.State() != chatService.StateIdle
	session.Cancel()

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"cancelled": wasStreaming,
	})
}

// Stream handles GET /api/conversations/{id}/stream
//
// Server-Sent Events endpoint. Events already emitted before the client
// connects are not replayed; the client fetches the snapshot first and then
// attaches.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	session, err := h.sessions.GetOrCreate(r.Context(), conversationID)
	if err != nil {
		h.respondDomainError(w, err, "load conversation")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientID := uuid.NewString()
	events := session.Subscribe(clientID)
	defer session.Unsubscribe(clientID)

	h.logger.Debug("sse client connected",
		"conversation_id", conversationID,
		"client_id", clientID,
	)

	keepAlive := sse.NewTickerKeepAlive(h.sseConfig.KeepAliveInterval)
	keepAliveWriter := sse.NewSSEKeepAliveWriter(w, flusher, conversationID, clientID)
	keepAliveDone := keepAlive.Start(keepAliveWriter, h.logger)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("sse client disconnected",
				"conversation_id", conversationID,
				"client_id", clientID,
			)
			return

		case <-keepAliveDone:
			// Keep-alive detected a dead connection
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if _, err := w.Write([]byte(event)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *ChatHandler) respondDomainError(w http.ResponseWriter, err error, op string) {
	status := domain.StatusCodeFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err)
		httputil.RespondError(w, status, "internal server error")
		return
	}

	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}
	httputil.RespondError(w, status, err.Error())
}
