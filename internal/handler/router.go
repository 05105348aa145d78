package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/city-explorer/internal/handler/chat"
	"github.com/zhouzirui/city-explorer/internal/handler/persona"
	"github.com/zhouzirui/city-explorer/internal/handler/stream"
	"github.com/zhouzirui/city-explorer/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/city-explorer/internal/middleware"
	personaModel "github.com/zhouzirui/city-explorer/internal/model/persona"
	aiService "github.com/zhouzirui/city-explorer/internal/service/ai"
	chatService "github.com/zhouzirui/city-explorer/internal/service/chat"
	"github.com/zhouzirui/city-explorer/pkg/utils"
)

// NewRouter wires HTTP routes to core services. aiSvc may be nil, in which
// case only the session and persona endpoints are functional.
func NewRouter(corsOrigin string, base personaModel.Persona, chatSvc *chatService.Service, aiSvc *aiService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(corsOrigin))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handleHealth)

		persona.New(base).RegisterRoutes(api)
		chat.New(chatSvc, aiSvc, base).RegisterRoutes(api)
		stream.New(aiSvc, chatSvc, base).RegisterRoutes(api)
		ws.New(aiSvc, chatSvc, base).RegisterRoutes(api)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "City Explorer API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
