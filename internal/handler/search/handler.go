package search

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/zhouzirui/trailchat/backend/internal/handler/chat"
	searchservice "github.com/zhouzirui/trailchat/backend/internal/service/search"
	"github.com/zhouzirui/trailchat/backend/pkg/utils"
)

// Service is the read-only query surface behind the search routes.
type Service interface {
	SearchMessages(ctx context.Context, query string) ([]string, error)
	HotKeywords(ctx context.Context, n int) ([]searchservice.Keyword, error)
	HourlyTrend(ctx context.Context, sessionID string) ([]searchservice.TrendPoint, error)
}

// Handler 搜索与统计的HTTP处理器
type Handler struct {
	svc Service
	log *slog.Logger
}

// New 创建搜索处理器
func New(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, log: logger.With("component", "search_handler")}
}

// RegisterRoutes 注册搜索与统计路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/search_messages", h.handleSearch)
	r.Get("/hot_keywords", h.handleHotKeywords)
	r.Get("/aggregation/hourly_trend/{sessionID}", h.handleHourlyTrend)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	sessionIDs, err := h.svc.SearchMessages(r.Context(), query)
	if err != nil {
		h.log.Error("search failed", "query", query, "error", err)
		utils.RespondError(w, http.StatusServiceUnavailable, "search unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"session_ids": sessionIDs})
}

func (h *Handler) handleHotKeywords(w http.ResponseWriter, r *http.Request) {
	n := 5
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	keywords, err := h.svc.HotKeywords(r.Context(), n)
	if err != nil {
		h.log.Error("hot keywords failed", "error", err)
		utils.RespondError(w, http.StatusServiceUnavailable, "hot keywords unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"keywords": keywords})
}

func (h *Handler) handleHourlyTrend(w http.ResponseWriter, r *http.Request) {
	sessionID := chathandler.SessionParam(r)
	trend, err := h.svc.HourlyTrend(r.Context(), sessionID)
	if err != nil {
		h.log.Error("hourly trend failed", "session_id", sessionID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to get hourly trend")
		return
	}

	body := map[string]any{"hourly_trend": trend}
	if len(trend) == 0 {
		body["message"] = "No data available for this session"
	}
	utils.RespondJSON(w, http.StatusOK, body)
}
