package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/orbital-labs/orbital/internal/ai"
	"github.com/orbital-labs/orbital/internal/chat"
	"github.com/orbital-labs/orbital/internal/middleware"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/service"
	"github.com/orbital-labs/orbital/internal/sse"
)

// ChatHandler is the web chat surface: a message endpoint that runs one
// turn and an SSE endpoint that streams the assistant's deltas.
type ChatHandler struct {
	chatService *service.ChatService
	engine      ai.Engine
	broker      *sse.Broker
}

func NewChatHandler(chatService *service.ChatService, engine ai.Engine, broker *sse.Broker) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		engine:      engine,
		broker:      broker,
	}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/events", h.Events)
	r.Post("/messages", h.PostMessage)
	return r
}

// ConversationRoutes manage transcripts.
func (h *ChatHandler) ConversationRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListConversations)
	r.Get("/{id}", h.GetConversation)
	r.Delete("/{id}", h.DeleteConversation)
	return r
}

type postMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Content        string `json:"content"`
}

func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	mode := model.ConversationMode(req.Mode)
	if mode == "" {
		mode = model.ModeChat
	}

	conv, err := h.chatService.GetOrCreate(r.Context(), user.ID, req.ConversationID, mode)
	if err != nil {
		writeError(w, err)
		return
	}

	session := chat.NewSession(h.chatService, h.engine, &brokerRenderer{
		broker:         h.broker,
		conversationID: conv.ID,
		ctx:            r.Context(),
	}, user.ID, conv, ai.ToolConfig{})

	msg, err := session.Turn(r.Context(), req.Content)
	if err != nil {
		h.publishError(r, conv.ID, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": conv.ID,
		"message": map[string]any{
			"id":        msg.ID,
			"role":      msg.Role,
			"content":   msg.ParsedContent(),
			"createdAt": msg.CreatedAt,
		},
	})
}

func (h *ChatHandler) Events(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	conversationID := r.URL.Query().Get("conversation")
	if conversationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation is required"})
		return
	}

	// ownership check before subscribing
	if _, err := h.chatService.Get(r.Context(), user.ID, conversationID); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(conversationID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("conversationId", conversationID).
		Str("userId", user.ID).
		Msg("sse connection established")

	ctx := r.Context()
	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("conversationId", conversationID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("conversationId", conversationID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := sendEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("conversationId", conversationID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	convs, err := h.chatService.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	conv, err := h.chatService.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	if err := h.chatService.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ChatHandler) publishError(r *http.Request, conversationID string, turnErr error) {
	data, err := json.Marshal(map[string]string{"error": turnErr.Error()})
	if err != nil {
		return
	}
	if err := h.broker.Publish(r.Context(), conversationID, sse.Event{Type: sse.EventError, Data: data}); err != nil {
		log.Warn().Err(err).Msg("failed to publish error event")
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// brokerRenderer forwards session output to SSE subscribers.
type brokerRenderer struct {
	broker         *sse.Broker
	conversationID string
	ctx            context.Context
}

func (b *brokerRenderer) Prompt() {}

func (b *brokerRenderer) Delta(content string) {
	if err := b.broker.PublishDelta(b.ctx, b.conversationID, content); err != nil {
		log.Warn().Err(err).Msg("failed to publish delta")
	}
}

func (b *brokerRenderer) TurnDone(msg *model.Message, _ *ai.Result) {
	data, err := json.Marshal(map[string]string{"messageId": msg.ID})
	if err != nil {
		return
	}
	if err := b.broker.Publish(b.ctx, b.conversationID, sse.Event{Type: sse.EventDone, Data: data}); err != nil {
		log.Warn().Err(err).Msg("failed to publish done event")
	}
}

func (b *brokerRenderer) TurnFailed(err error) {}
