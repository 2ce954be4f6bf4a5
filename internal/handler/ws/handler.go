package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	chathandler "github.com/zhouzirui/trailchat/backend/internal/handler/chat"
	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	"github.com/zhouzirui/trailchat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/trailchat/backend/internal/service/chat"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	replyTimeout = 90 * time.Second
	// userSender marks messages that ask the responder for a reply.
	userSender = "me"
)

var errResponderDisabled = errors.New("AI responder is not configured")

// MessageStore is the part of the chat service the socket uses.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID string, msg chat.Message) (chat.Message, error)
	ListHistory(ctx context.Context, sessionID string) ([]chat.Message, error)
}

// Responder generates the automated reply.
type Responder interface {
	GenerateReply(ctx context.Context, text string) (string, error)
}

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc   MessageStore
	responder Responder
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

// New 创建WebSocket处理器. responder may be nil.
func New(chatSvc MessageStore, responder Responder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chatSvc:   chatSvc,
		responder: responder,
		log:       logger.With("component", "websocket"),
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
	r.Get("/ws/chat/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

type errorFrame struct {
	Error string `json:"error"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chathandler.SessionParam(r)
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	log := h.log.With("session_id", sessionID, "conn_id", uuid.NewString())
	log.Info("connection opened")
	defer log.Info("connection closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, conn)

	history, err := h.chatSvc.ListHistory(ctx, sessionID)
	if err != nil {
		log.Error("load history failed", "error", err)
	}
	for _, msg := range history {
		if err := h.write(conn, msg); err != nil {
			log.Warn("send history failed", "error", err)
			return
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			_ = h.write(conn, errorFrame{Error: "invalid message"})
			continue
		}

		if err := h.handleMessage(ctx, conn, log, sessionID, in); err != nil {
			log.Warn("write failed", "error", err)
			return
		}
	}
}

// handleMessage stores and echoes one inbound message, then the responder's
// reply when a user sent it. A returned error means the socket is unusable.
func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, log *slog.Logger, sessionID string, in inboundMessage) error {
	stored, err := h.chatSvc.AppendMessage(ctx, sessionID, chat.Message{
		Sender:  in.Sender,
		Content: in.Content,
		TS:      in.TS,
	})
	if err != nil {
		log.Warn("append failed", "error", err)
		return h.write(conn, errorFrame{Error: err.Error()})
	}
	if err := h.write(conn, stored); err != nil {
		return err
	}

	if stored.Sender != userSender {
		return nil
	}

	reply := h.generateReply(ctx, log, stored.Content)
	aiMsg, err := h.chatSvc.AppendMessage(ctx, sessionID, chat.Message{
		Sender:  chatservice.AssistantSender,
		Content: reply,
	})
	if err != nil {
		log.Warn("append reply failed", "error", err)
		return h.write(conn, errorFrame{Error: err.Error()})
	}
	return h.write(conn, aiMsg)
}

func (h *Handler) generateReply(ctx context.Context, log *slog.Logger, text string) string {
	if h.responder == nil {
		return ai.Apology(errResponderDisabled)
	}

	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	reply, err := h.responder.GenerateReply(ctx, text)
	if err != nil {
		log.Error("responder failed", "error", err)
		return ai.Apology(err)
	}
	if reply == "" {
		return ai.Apology(errors.New("empty reply"))
	}
	return reply
}

func (h *Handler) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// pingLoop 定期发送ping消息. WriteControl may run concurrently with WriteJSON.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
