package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/city-explorer/internal/config"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
	aiService "github.com/zhouzirui/city-explorer/internal/service/ai"
	"github.com/zhouzirui/city-explorer/internal/service/ai/aitest"
	chatservice "github.com/zhouzirui/city-explorer/internal/service/chat"
)

func setupRouter(t *testing.T, m *aitest.ChatModel) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService()

	var aiSvc *aiService.Service
	if m != nil {
		var err error
		aiSvc, err = aiService.NewServiceWithModel(context.Background(), m, config.AIConfig{})
		if err != nil {
			t.Fatalf("NewServiceWithModel err: %v", err)
		}
	}

	handler := New(chatSvc, aiSvc, persona.Default())
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", resp.Body.String(), err)
	}
	return body
}

func TestCreateSessionWithCity(t *testing.T) {
	r, _ := setupRouter(t, nil)

	resp := postJSON(r, "/session", map[string]string{"city": "Lisbon"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if body := decodeBody(t, resp); body["city"] != "Lisbon" {
		t.Fatalf("unexpected session %v", body)
	}
}

func TestCreateSessionBlankCityUsesDefault(t *testing.T) {
	r, _ := setupRouter(t, nil)

	resp := postJSON(r, "/session", map[string]string{"city": "  "})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if body := decodeBody(t, resp); body["city"] != persona.DefaultCity {
		t.Fatalf("expected default city, got %v", body["city"])
	}
}

func TestCreateSessionInvalidBody(t *testing.T) {
	r, _ := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader("{"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTranscriptUnknownSession(t *testing.T) {
	r, _ := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/session/missing/transcript", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestTravelChatRequiresMessageOrCity(t *testing.T) {
	r, _ := setupRouter(t, aitest.NewChatModel("unused"))

	resp := postJSON(r, "/travel/chat", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTravelChatSessionOnlyAsksAboutSessionCity(t *testing.T) {
	m := aitest.NewChatModel("Lisbon has seven hills.")
	r, chatSvc := setupRouter(t, m)

	session, err := chatSvc.CreateSession(context.Background(), "Lisbon")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	resp := postJSON(r, "/travel/chat", map[string]string{"sessionId": session.ID})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	call := m.LastCall()
	if got := call[len(call)-1].Content; got != "Tell me what a newcomer should know about Lisbon." {
		t.Fatalf("unexpected generated question %q", got)
	}
}

func TestTravelChatUnknownSessionOnly(t *testing.T) {
	r, _ := setupRouter(t, aitest.NewChatModel("unused"))

	resp := postJSON(r, "/travel/chat", map[string]string{"sessionId": "missing"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestTravelChatWithoutAI(t *testing.T) {
	r, _ := setupRouter(t, nil)

	resp := postJSON(r, "/travel/chat", map[string]string{"message": "hi", "city": "Lisbon"})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestTravelChatRecordsSessionExchange(t *testing.T) {
	m := aitest.NewChatModel("Lisbon is famous for pastel de nata.")
	r, chatSvc := setupRouter(t, m)

	session, err := chatSvc.CreateSession(context.Background(), "Lisbon")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	resp := postJSON(r, "/travel/chat", map[string]string{"message": "what should I eat?", "sessionId": session.ID})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	if body["response"] != "Lisbon is famous for pastel de nata." {
		t.Fatalf("unexpected response %v", body["response"])
	}

	messages, err := chatSvc.LoadTranscript(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected one exchange, got %d messages", len(messages))
	}

	system := m.LastCall()[0].Content
	if !strings.Contains(system, "Lisbon") {
		t.Fatalf("system prompt not bound to session city: %q", system)
	}
}

func TestTravelChatCorrectsWrongCity(t *testing.T) {
	m := aitest.NewChatModel(
		"Welcome to Pune! Visit Shaniwar Wada and Aga Khan Palace.",
		"Welcome to Nagpur! Try tarri poha near Futala Lake in Nagpur.",
	)
	r, _ := setupRouter(t, m)

	resp := postJSON(r, "/travel/chat", map[string]string{"message": "what to see?", "city": "Nagpur"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["response"] != "Welcome to Nagpur! Try tarri poha near Futala Lake in Nagpur." {
		t.Fatalf("expected corrected answer, got %v", body["response"])
	}
	if m.CallCount() != 2 {
		t.Fatalf("expected one corrective request, got %d calls", m.CallCount())
	}
}

func TestTravelChatFallsBackToReplacement(t *testing.T) {
	m := aitest.NewChatModel("Welcome to Pune! Visit Shaniwar Wada and Aga Khan Palace in Pune.")
	r, _ := setupRouter(t, m)

	resp := postJSON(r, "/travel/chat", map[string]string{"message": "what to see?", "city": "Nagpur"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	text, _ := decodeBody(t, resp)["response"].(string)
	if strings.Contains(text, "Pune") {
		t.Fatalf("wrong city left in answer: %q", text)
	}
	if !strings.Contains(text, "Nagpur") {
		t.Fatalf("requested city missing: %q", text)
	}
}

func TestTravelChatGreetsWhenCityMissing(t *testing.T) {
	m := aitest.NewChatModel("Try the local bakeries.")
	r, _ := setupRouter(t, m)

	resp := postJSON(r, "/travel/chat", map[string]string{"message": "food?", "city": "Porto"})
	text, _ := decodeBody(t, resp)["response"].(string)
	if !strings.HasPrefix(text, "Welcome to Porto!") {
		t.Fatalf("expected greeting prefix, got %q", text)
	}
}

func TestTravelChatModelError(t *testing.T) {
	m := aitest.NewChatModel()
	m.Err = context.DeadlineExceeded
	r, _ := setupRouter(t, m)

	resp := postJSON(r, "/travel/chat", map[string]string{"message": "hi", "city": "Lisbon"})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if body := decodeBody(t, resp); body["success"] != false {
		t.Fatalf("expected success=false, got %v", body)
	}
}
