package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
)

const (
	defaultOpTimeout    = 3 * time.Second
	defaultMaxTxRetries = 8
	defaultRetention    = int64(30 * 24 * 60 * 60)
	defaultWelcome      = "你好！我是 AI 助手，很高興為您服務。請問有什麼可以協助您的嗎？"
	// AssistantSender is the sender recorded for responder messages.
	AssistantSender = "AI"
)

// Options tunes the chat services. Zero values fall back to defaults.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	Now     func() time.Time

	OpTimeout    time.Duration
	MaxTxRetries int
	// RetentionSeconds is the deleted-record retention window.
	RetentionSeconds int64
	WelcomeMessage   string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(nil)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = defaultOpTimeout
	}
	if o.MaxTxRetries <= 0 {
		o.MaxTxRetries = defaultMaxTxRetries
	}
	if o.RetentionSeconds <= 0 {
		o.RetentionSeconds = defaultRetention
	}
	if o.WelcomeMessage == "" {
		o.WelcomeMessage = defaultWelcome
	}
	return o
}

// base carries the injected client and shared policies of every component.
type base struct {
	rdb        redis.UniversalClient
	log        *slog.Logger
	metrics    *Metrics
	now        func() time.Time
	opTimeout  time.Duration
	maxRetries int
}

func newBase(rdb redis.UniversalClient, opts Options) base {
	return base{
		rdb:        rdb,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
		opTimeout:  opts.OpTimeout,
		maxRetries: opts.MaxTxRetries,
	}
}

func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.opTimeout)
}

// update runs fn under WATCH on keys and retries when EXEC aborts because a
// watched key changed. fn returns raw backend errors or domain errors.
func (b *base) update(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		err := b.rdb.Watch(ctx, fn, keys...)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			b.metrics.Conflicts.WithLabelValues(op).Inc()
			b.log.Debug("watched key changed, retrying", "op", op, "attempt", attempt+1)
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
			return err
		default:
			return backendErr(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, ErrConflict)
}

func (b *base) warnMalformed(sessionID, key string, index int, err error) {
	b.metrics.Malformed.WithLabelValues(logName(key)).Inc()
	b.log.Warn("skipping malformed record", "session_id", sessionID, "key", key, "index", index, "error", err)
}

func logName(key string) string {
	name, _, _ := strings.Cut(key, ":")
	return name
}

// Service is the message lifecycle facade used by the transport layer.
type Service struct {
	metrics *Metrics

	log        *Log
	quarantine *Quarantine
	sweeper    *Sweeper
	audit      *AuditWriter
	registry   *Registry
	retention  int64
}

// NewService wires every lifecycle component around one backend client.
func NewService(rdb redis.UniversalClient, opts Options) *Service {
	opts = opts.withDefaults()

	audit := NewAuditWriter(rdb, opts)
	msgLog := NewLog(rdb, opts)

	return &Service{
		metrics:    opts.Metrics,
		log:        msgLog,
		quarantine: NewQuarantine(rdb, audit, opts),
		sweeper:    NewSweeper(rdb, opts),
		audit:      audit,
		registry:   NewRegistry(rdb, msgLog, audit, opts),
		retention:  opts.RetentionSeconds,
	}
}

// AppendMessage stores a message in the live log and mirrors it to the audit stream.
func (s *Service) AppendMessage(ctx context.Context, sessionID string, msg chat.Message) (chat.Message, error) {
	stored, err := s.log.Append(ctx, sessionID, msg)
	s.metrics.observe("append", err)
	if err != nil {
		return chat.Message{}, err
	}
	s.audit.Emit(ctx, sessionID, stored, false)
	return stored, nil
}

// ListHistory returns the live log in storage order.
func (s *Service) ListHistory(ctx context.Context, sessionID string) ([]chat.Message, error) {
	return s.log.ReadAll(ctx, sessionID)
}

// DeleteBatch quarantines every live message whose ts is listed and returns
// how many were moved.
func (s *Service) DeleteBatch(ctx context.Context, sessionID string, tsList []int64) (int, error) {
	n, err := s.quarantine.DeleteBatch(ctx, sessionID, tsList)
	s.metrics.observe("delete_batch", err)
	return n, err
}

// RestoreMessage moves the (ts, deletedAt) record back into the live log.
func (s *Service) RestoreMessage(ctx context.Context, sessionID string, ts, deletedAt int64) (chat.Message, error) {
	msg, err := s.quarantine.Restore(ctx, sessionID, ts, deletedAt, s.retention)
	s.metrics.observe("restore", err)
	return msg, err
}

// ListDeleted returns the quarantine records still inside the retention window.
func (s *Service) ListDeleted(ctx context.Context, sessionID string) ([]chat.DeletedRecord, error) {
	return s.sweeper.ReadValid(ctx, sessionID, s.retention)
}

// CreateSession registers the session and posts the welcome message.
func (s *Service) CreateSession(ctx context.Context, sessionID string) (chat.Session, error) {
	session, err := s.registry.CreateSession(ctx, sessionID)
	s.metrics.observe("create_session", err)
	return session, err
}

// DeleteSession drops the session and every structure it owns.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.registry.DeleteSession(ctx, sessionID)
	s.metrics.observe("delete_session", err)
	return err
}

// ListSessions returns summaries of active sessions ordered by id.
func (s *Service) ListSessions(ctx context.Context) ([]chat.Session, error) {
	return s.registry.ListSessions(ctx)
}

// RetentionSeconds reports the configured retention window.
func (s *Service) RetentionSeconds() int64 { return s.retention }
