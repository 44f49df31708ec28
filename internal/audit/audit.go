// Package audit records automation actions. Entries always land in the local
// audit table; when Kafka brokers are configured they are additionally
// emitted as JSON events, best-effort.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/personapulse/personapulse/internal/config"
	"github.com/personapulse/personapulse/internal/store"
)

// Well-known audit actions.
const (
	ActionReplySent     = "reply.sent"
	ActionReplyFailed   = "reply.failed"
	ActionPostPublished = "post.published"
	ActionPostFailed    = "post.failed"
)

// Logger writes audit entries.
type Logger struct {
	store  *store.Store
	writer *kafka.Writer
}

// New creates a Logger. The Kafka writer is only created when brokers are
// configured.
func New(st *store.Store, cfg config.AuditConfig) *Logger {
	l := &Logger{store: st}
	if strings.TrimSpace(cfg.Brokers) != "" {
		l.writer = &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		}
	}
	return l
}

// Record appends an audit entry and emits it when a writer is configured.
// Emission failures are logged and never propagate: the audit trail must not
// take down the send path.
func (l *Logger) Record(ctx context.Context, personaID, action, targetID, detail string) {
	entry := &store.AuditEntry{
		PersonaID: personaID,
		Action:    action,
		TargetID:  targetID,
		Detail:    detail,
	}
	if err := l.store.AppendAudit(entry); err != nil {
		slog.Error("Audit append failed", "persona", personaID, "action", action, "error", err)
	}

	if l.writer == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	emitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := l.writer.WriteMessages(emitCtx, kafka.Message{
		Key:   []byte(personaID),
		Value: payload,
	}); err != nil {
		slog.Warn("Audit event emit failed", "persona", personaID, "action", action, "error", err)
	}
}

// Close releases the Kafka writer if one was created.
func (l *Logger) Close() error {
	if l.writer != nil {
		return l.writer.Close()
	}
	return nil
}
