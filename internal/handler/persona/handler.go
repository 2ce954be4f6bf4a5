package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/trailchat/backend/internal/model/persona"
	"github.com/zhouzirui/trailchat/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
	activeID string
}

// New 创建persona处理器. activeID is the persona the responder uses.
func New(personas persona.Store, activeID string) *Handler {
	return &Handler{
		personas: personas,
		activeID: activeID,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
}

// handleListPersonas 列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"personas": h.personas.List(),
		"active":   h.activeID,
	})
}
