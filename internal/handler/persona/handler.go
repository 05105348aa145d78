package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/city-explorer/internal/model/persona"
	"github.com/zhouzirui/city-explorer/internal/service/ai"
	"github.com/zhouzirui/city-explorer/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	base    persona.Persona
	prompts *ai.PersonaPromptManager
}

// New 创建persona处理器
func New(base persona.Persona) *Handler {
	return &Handler{
		base:    base,
		prompts: ai.NewPersonaPromptManager(),
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/persona", h.handleGetPersona)
}

// handleGetPersona 返回绑定城市后的persona及系统提示词
func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	guide := h.base.ForCity(r.URL.Query().Get("city"))

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"persona":      guide,
		"greeting":     guide.Greeting(),
		"systemPrompt": h.prompts.BuildSystemPrompt(&guide),
	})
}
