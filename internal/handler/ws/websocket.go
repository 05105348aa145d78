// Package ws serves the city guide conversation over a WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/city-explorer/internal/model/chat"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
	"github.com/zhouzirui/city-explorer/internal/service/ai"
	chatservice "github.com/zhouzirui/city-explorer/internal/service/chat"
)

const (
	defaultReadTimeout = 60 * time.Second
	pingInterval       = 54 * time.Second
)

// Handler WebSocket文本会话处理器
type Handler struct {
	aiSvc    *ai.Service
	chatSvc  *chatservice.Service
	persona  persona.Persona
	upgrader websocket.Upgrader

	readTimeout time.Duration
}

// New 创建WebSocket处理器
func New(aiSvc *ai.Service, chatSvc *chatservice.Service, base persona.Persona) *Handler {
	return &Handler{
		aiSvc:   aiSvc,
		chatSvc: chatSvc,
		persona: base,

		readTimeout: defaultReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID string
	guide     *persona.Persona
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	guide := h.persona.ForCity(session.City)
	state := &connectionState{sessionID: sessionID, guide: &guide}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	glog.Infof("[websocket] new connection session=%s city=%s", sessionID, guide.City)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, outgoingMessage{
		Type:      "connected",
		SessionID: sessionID,
		Data:      map[string]any{"city": guide.City, "greeting": guide.Greeting()},
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Warningf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		var msg inboundMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			h.sendError(conn, "invalid message")
			continue
		}
		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}

		switch msg.Type {
		case "text":
			h.handleTextMessage(ctx, conn, state, msg.Data)
		default:
			h.sendError(conn, "unsupported message type: "+msg.Type)
		}
	}
}

func (h *Handler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := sonic.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	if strings.TrimSpace(text.Text) == "" {
		return
	}

	// 模型调用期间不读取连接，暂停读超时，结束后重新计时
	conn.SetReadDeadline(time.Time{})
	defer func() {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}()

	if err := h.processUserText(ctx, conn, state, text.Text); err != nil {
		h.sendError(conn, err.Error())
	}
}

func (h *Handler) processUserText(ctx context.Context, conn *websocket.Conn, state *connectionState, userText string) error {
	if h.aiSvc == nil {
		return errors.New("ai service unavailable")
	}

	history, err := h.chatSvc.LoadTranscript(ctx, state.sessionID)
	if err != nil {
		return fmt.Errorf("load transcript failed: %w", err)
	}

	h.send(conn, outgoingMessage{
		Type:      "user",
		SessionID: state.sessionID,
		Data:      map[string]any{"text": userText},
	})

	responseText, err := h.generateAIResponse(ctx, conn, state, history, userText)
	if err != nil {
		return err
	}

	if err := h.chatSvc.SaveExchange(ctx, state.sessionID, userText, responseText); err != nil {
		glog.Warningf("[websocket] save exchange failed: %v", err)
	}
	return nil
}

func (h *Handler) generateAIResponse(ctx context.Context, conn *websocket.Conn, state *connectionState, history []chat.Message, userText string) (string, error) {
	if !h.aiSvc.StreamingEnabled() {
		resp, err := h.aiSvc.GenerateResponse(ctx, state.guide, history, userText)
		if err != nil {
			return "", fmt.Errorf("ai generation failed: %w", err)
		}
		h.sendAssistant(conn, state.sessionID, resp.Content)
		return resp.Content, nil
	}

	stream, err := h.aiSvc.StreamResponse(ctx, state.guide, history, userText)
	if err != nil {
		return "", fmt.Errorf("ai streaming failed: %w", err)
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("ai stream recv failed: %w", recvErr)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.send(conn, outgoingMessage{
				Type:      "assistant_delta",
				SessionID: state.sessionID,
				Data:      map[string]any{"text": chunk.Content},
			})
		}
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("concat ai chunks failed: %w", err)
	}

	h.sendAssistant(conn, state.sessionID, merged.Content)
	return merged.Content, nil
}

func (h *Handler) sendAssistant(conn *websocket.Conn, sessionID, text string) {
	h.send(conn, outgoingMessage{
		Type:      "assistant",
		SessionID: sessionID,
		Data:      map[string]any{"text": text, "isFinal": true},
	})
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	h.send(conn, outgoingMessage{
		Type: "error",
		Data: map[string]string{"message": message},
	})
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	data, err := sonic.Marshal(msg)
	if err != nil {
		glog.Errorf("[websocket] marshal %s failed: %v", msg.Type, err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		glog.Warningf("[websocket] write %s failed: %v", msg.Type, err)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
