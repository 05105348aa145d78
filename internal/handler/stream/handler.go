package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"github.com/zhouzirui/city-explorer/internal/model/chat"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
	aiService "github.com/zhouzirui/city-explorer/internal/service/ai"
	chatService "github.com/zhouzirui/city-explorer/internal/service/chat"
	"github.com/zhouzirui/city-explorer/pkg/utils"
)

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	aiService *aiService.Service
	chatSvc   *chatService.Service
	persona   persona.Persona
}

// New creates a new stream handler
func New(aiSvc *aiService.Service, chatSvc *chatService.Service, base persona.Persona) *Handler {
	return &Handler{
		aiService: aiSvc,
		chatSvc:   chatSvc,
		persona:   base,
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RegisterRoutes mounts the streaming endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	if h.aiService == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
		return
	}
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
		glog.Warningf("[stream] session=%s: %v", sessionID, err)
	}
}

// HandleStreamRequest processes streaming AI responses for a chat session.
// Errors after the headers are written are reported as SSE error events.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	session, guide, err := h.getSessionPersona(ctx, sessionID)
	if err != nil {
		h.sendSSEError(w, flusher, err.Error())
		return err
	}

	history, err := h.chatSvc.LoadTranscript(ctx, session.ID)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to load conversation: %v", err))
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
		Content:   guide.Greeting(),
	})

	response, err := h.dispatchAIResponse(ctx, w, flusher, sessionID, guide, history, userMessage)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("AI generation failed: %v", err))
		return err
	}

	// 只有完整的一轮才写入会话
	if err := h.chatSvc.SaveExchange(ctx, sessionID, userMessage, response.Content); err != nil {
		glog.Warningf("[stream] failed to save exchange: %v", err)
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	glog.Infof("[stream] completed response for session=%s, city=%s", sessionID, guide.City)
	return nil
}

func (h *Handler) dispatchAIResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, guide *persona.Persona, history []chat.Message, userMessage string) (*schema.Message, error) {
	if h.aiService.StreamingEnabled() {
		return h.streamAIResponse(ctx, w, flusher, sessionID, guide, history, userMessage)
	}

	response, err := h.aiService.GenerateResponse(ctx, guide, history, userMessage)
	if err != nil {
		return nil, err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   response.Content,
	})

	return response, nil
}

// getSessionPersona binds the base persona to the session city.
func (h *Handler) getSessionPersona(ctx context.Context, sessionID string) (*chat.Session, *persona.Persona, error) {
	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	guide := h.persona.ForCity(session.City)
	return &session, &guide, nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event: "error",
		Error: errorMsg,
	})
}

func (h *Handler) streamAIResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, guide *persona.Persona, history []chat.Message, userMessage string) (*schema.Message, error) {
	stream, err := h.aiService.StreamResponse(ctx, guide, history, userMessage)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.sendSSE(w, flusher, StreamResponse{
				Event:     "delta",
				SessionID: sessionID,
				Content:   chunk.Content,
			})
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   response.Content,
	})

	return response, nil
}
