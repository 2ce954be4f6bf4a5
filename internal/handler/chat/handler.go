package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/trailchat/backend/internal/service/chat"
	"github.com/zhouzirui/trailchat/backend/pkg/utils"
)

// Service is the message lifecycle surface the handler needs.
type Service interface {
	AppendMessage(ctx context.Context, sessionID string, msg chat.Message) (chat.Message, error)
	ListHistory(ctx context.Context, sessionID string) ([]chat.Message, error)
	DeleteBatch(ctx context.Context, sessionID string, tsList []int64) (int, error)
	RestoreMessage(ctx context.Context, sessionID string, ts, deletedAt int64) (chat.Message, error)
	ListDeleted(ctx context.Context, sessionID string) ([]chat.DeletedRecord, error)
	CreateSession(ctx context.Context, sessionID string) (chat.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]chat.Session, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc Service
	log     *slog.Logger
}

// New 创建聊天处理器
func New(chatSvc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chatSvc: chatSvc,
		log:     logger.With("component", "chat_handler"),
	}
}

// RegisterRoutes 注册会话与消息相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleListSessions)
		r.Post("/{sessionID}", h.handleCreateSession)
		r.Delete("/{sessionID}", h.handleDeleteSession)
	})

	r.Route("/messages", func(r chi.Router) {
		r.Post("/", h.handleAddMessage)
		r.Post("/batch_delete", h.handleBatchDelete)
		r.Post("/restore", h.handleRestore)
		r.Get("/deleted_history/{sessionID}", h.handleDeletedHistory)
		r.Get("/{sessionID}", h.handleHistory)
	})
}

type addMessageRequest struct {
	SessionID string `json:"session_id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	TS        int64  `json:"ts"`
}

type batchDeleteRequest struct {
	SessionID string  `json:"session_id"`
	TSList    []int64 `json:"ts_list"`
}

type restoreRequest struct {
	SessionID   string `json:"session_id"`
	TSToRestore *int64 `json:"ts_to_restore"`
	DeletedAt   *int64 `json:"deleted_at"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chatSvc.ListSessions(r.Context())
	if err != nil {
		h.log.Error("list sessions failed", "error", err)
		sessions = []chat.Session{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionParam(r)
	session, err := h.chatSvc.CreateSession(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, "create session", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"msg":     "Session created successfully",
		"session": session,
	})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), SessionParam(r)); err != nil {
		h.respondServiceError(w, "delete session", err)
		return
	}
	utils.RespondMessage(w, http.StatusOK, "Session deleted successfully")
}

func (h *Handler) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var payload addMessageRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := h.chatSvc.AppendMessage(r.Context(), payload.SessionID, chat.Message{
		Sender:  payload.Sender,
		Content: payload.Content,
		TS:      payload.TS,
	})
	if err != nil {
		h.respondServiceError(w, "append message", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"msg":     "Message saved successfully",
		"message": stored,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionParam(r)
	messages, err := h.chatSvc.ListHistory(r.Context(), sessionID)
	if err != nil {
		h.log.Error("list history failed", "session_id", sessionID, "error", err)
		messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *Handler) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var payload batchDeleteRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	deleted, err := h.chatSvc.DeleteBatch(r.Context(), payload.SessionID, payload.TSList)
	if err != nil {
		h.respondServiceError(w, "batch delete", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"msg":     fmt.Sprintf("Deleted %d messages", deleted),
		"deleted": deleted,
	})
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	var payload restoreRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.TSToRestore == nil || payload.DeletedAt == nil {
		utils.RespondError(w, http.StatusBadRequest, "ts_to_restore and deleted_at are required")
		return
	}

	restored, err := h.chatSvc.RestoreMessage(r.Context(), payload.SessionID, *payload.TSToRestore, *payload.DeletedAt)
	if err != nil {
		h.respondServiceError(w, "restore message", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"msg":     "Message restored successfully",
		"message": restored,
	})
}

func (h *Handler) handleDeletedHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionParam(r)
	records, err := h.chatSvc.ListDeleted(r.Context(), sessionID)
	if err != nil {
		h.log.Error("list deleted history failed", "session_id", sessionID, "error", err)
		records = []chat.DeletedRecord{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"deleted_messages": records})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(op+" failed", "error", err)
	}
	utils.RespondError(w, status, err.Error())
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatservice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatservice.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, chatservice.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, chatservice.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SessionParam returns the decoded {sessionID} route parameter.
func SessionParam(r *http.Request) string {
	raw := chi.URLParam(r, "sessionID")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}
