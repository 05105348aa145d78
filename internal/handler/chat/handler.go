package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"github.com/zhouzirui/city-explorer/internal/analysis/cityguard"
	"github.com/zhouzirui/city-explorer/internal/model/chat"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
	aiService "github.com/zhouzirui/city-explorer/internal/service/ai"
	chatService "github.com/zhouzirui/city-explorer/internal/service/chat"
	"github.com/zhouzirui/city-explorer/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	aiSvc   *aiService.Service
	persona persona.Persona
}

// New 创建聊天处理器。aiSvc 为 nil 时仅提供会话接口。
func New(chatSvc *chatService.Service, aiSvc *aiService.Service, base persona.Persona) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		aiSvc:   aiSvc,
		persona: base,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}/transcript", h.handleTranscript)
	r.Post("/travel/chat", h.handleTravelChat)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		City string `json:"city"`
	}

	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.City)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleTranscript 返回会话历史
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  messages,
	})
}

type travelChatRequest struct {
	Message   string `json:"message"`
	City      string `json:"city"`
	SessionID string `json:"sessionId"`
}

// handleTravelChat 单轮或基于会话的城市问答
func (h *Handler) handleTravelChat(w http.ResponseWriter, r *http.Request) {
	var payload travelChatRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(payload.Message)
	city := strings.TrimSpace(payload.City)
	// a session supplies its own city
	if message == "" && city == "" && payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "Either message or city must be provided")
		return
	}

	if h.aiSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai service unavailable")
		return
	}

	ctx := r.Context()
	var history []chat.Message
	if payload.SessionID != "" {
		session, err := h.chatSvc.GetSession(ctx, payload.SessionID)
		if err != nil {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		if city == "" {
			city = session.City
		}
		history, err = h.chatSvc.LoadTranscript(ctx, session.ID)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	guide := h.persona.ForCity(city)
	if message == "" {
		message = fmt.Sprintf("Tell me what a newcomer should know about %s.", guide.City)
	}

	resp, err := h.aiSvc.GenerateResponse(ctx, &guide, history, message)
	if err != nil {
		glog.Errorf("[travel] chat failed city=%q: %v", guide.City, err)
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to get response from travel agent",
			"message": err.Error(),
		})
		return
	}

	text := h.enforceCity(ctx, &guide, resp.Content)

	if payload.SessionID != "" {
		if err := h.chatSvc.SaveExchange(ctx, payload.SessionID, message, text); err != nil {
			glog.Warningf("[travel] failed to save exchange session=%s: %v", payload.SessionID, err)
		}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"response":  text,
		"sessionId": payload.SessionID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// enforceCity keeps the answer about the requested city. A drifting answer
// gets one corrective request before falling back to text replacement.
func (h *Handler) enforceCity(ctx context.Context, guide *persona.Persona, text string) string {
	if guide.City == persona.DefaultCity {
		return text
	}

	report := cityguard.Check(text, guide.City)
	switch {
	case report.WrongCity != "":
		glog.Warningf("[travel] answer describes %q instead of %q (landmarks=%t)", report.WrongCity, guide.City, report.ViaLandmarks)

		corrected, err := h.aiSvc.GenerateResponse(ctx, guide, nil, cityguard.CorrectionPrompt(report.WrongCity, guide.City))
		if err != nil {
			glog.Errorf("[travel] correction request failed: %v", err)
			return cityguard.Correct(text, report.WrongCity, guide.City)
		}

		recheck := cityguard.Check(corrected.Content, guide.City)
		if recheck.WrongCity == "" && recheck.MentionsCity {
			return corrected.Content
		}
		return cityguard.Correct(text, report.WrongCity, guide.City)
	case !report.MentionsCity:
		return fmt.Sprintf("Welcome to %s! Let me provide you with information about %s.\n\n%s", guide.City, guide.City, text)
	default:
		return text
	}
}
