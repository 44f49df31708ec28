// Package reply implements the reply automation state machine:
// received → processing → {scheduled, sent, failed}. Workers are stateless
// and may overlap; ownership of a record is taken solely through the store's
// conditional claim, and a lost claim is a silent no-op, not an error.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/personapulse/personapulse/internal/audit"
	"github.com/personapulse/personapulse/internal/generate"
	"github.com/personapulse/personapulse/internal/publish"
	"github.com/personapulse/personapulse/internal/secrets"
	"github.com/personapulse/personapulse/internal/store"
)

// TextGenerator is the slice of the content generator the engine needs.
type TextGenerator interface {
	Generate(ctx context.Context, persona *store.Persona, policy, custom string) (string, error)
}

// Engine drives reply records through the automation lifecycle.
type Engine struct {
	store         *store.Store
	vault         *secrets.Vault
	gen           TextGenerator
	pub           publish.Publisher
	audit         *audit.Logger
	threadContext int
}

// New creates an Engine. threadContext bounds how many prior thread replies
// are folded into AI prompts.
func New(st *store.Store, vault *secrets.Vault, gen TextGenerator, pub publish.Publisher, auditLog *audit.Logger, threadContext int) *Engine {
	if threadContext <= 0 {
		threadContext = 10
	}
	return &Engine{
		store:         st,
		vault:         vault,
		gen:           gen,
		pub:           pub,
		audit:         auditLog,
		threadContext: threadContext,
	}
}

// Process runs the automation decision for one inbound reply. Safe to invoke
// concurrently with other workers on the same record: exactly one wins the
// claim, the rest return nil having done nothing.
func (e *Engine) Process(ctx context.Context, rec *store.ReplyRecord) error {
	persona, err := e.store.GetPersona(rec.PersonaID)
	if err != nil {
		return fmt.Errorf("load persona for reply %s: %w", rec.ID, err)
	}
	if !persona.Active || persona.ReplyMode == store.ReplyModeDisabled {
		// Automation is off; leave the record in received for visibility.
		return nil
	}

	won, err := e.store.ClaimReply(rec.ID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	response, err := e.decide(ctx, persona, rec)
	if err != nil {
		return e.recordDecisionFailure(rec, err)
	}
	if response == "" {
		// Keyword persona without AI fallback and no keyword matched: there is
		// nothing to send. Terminal, not retried.
		return e.store.MarkReplyFailed(rec.ID, "no trigger keyword matched", false)
	}

	if persona.ReplyDelaySec > 0 {
		at := time.Now().Add(time.Duration(persona.ReplyDelaySec) * time.Second)
		if err := e.store.MarkReplyScheduled(rec.ID, at, response); err != nil {
			return err
		}
		slog.Info("Reply scheduled", "reply", rec.ID, "persona", persona.ID, "send_at", at)
		return nil
	}
	return e.send(ctx, persona, rec, response)
}

// SendScheduled performs the delayed send for a scheduled record. The same
// conditional-claim discipline applies.
func (e *Engine) SendScheduled(ctx context.Context, rec *store.ReplyRecord, now time.Time) error {
	won, err := e.store.ClaimScheduledReply(rec.ID, now)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	persona, err := e.store.GetPersona(rec.PersonaID)
	if err != nil {
		return fmt.Errorf("load persona for scheduled reply %s: %w", rec.ID, err)
	}
	return e.send(ctx, persona, rec, rec.CachedResponse)
}

// ProcessBatch runs Process over records, never letting one failure block the
// rest of the batch.
func (e *Engine) ProcessBatch(ctx context.Context, recs []*store.ReplyRecord) {
	for _, rec := range recs {
		if err := e.Process(ctx, rec); err != nil {
			slog.Error("Reply processing failed", "reply", rec.ID, "error", err)
		}
	}
}

// decide picks the response text. Keyword mode is evaluated first; a keyword
// miss falls through to AI generation only when the persona enables it.
// AI mode skips keyword matching entirely. An empty response with nil error
// means no automation applies.
func (e *Engine) decide(ctx context.Context, persona *store.Persona, rec *store.ReplyRecord) (string, error) {
	if persona.ReplyMode == store.ReplyModeKeyword {
		if matchKeyword(persona.Keywords, rec.Text) {
			return persona.ReplyTemplate, nil
		}
		if !persona.AIFallback {
			return "", nil
		}
	}
	return e.gen.Generate(ctx, persona, e.replyPolicy(rec), "")
}

// replyPolicy builds the contextual instruction block for AI replies: the
// original post when resolvable, then up to threadContext prior replies
// oldest first, then the reply being answered.
func (e *Engine) replyPolicy(rec *store.ReplyRecord) string {
	var b strings.Builder
	b.WriteString("Write a reply to a comment on one of your posts.\n")

	if rec.ParentPostID != "" {
		if content, err := e.store.PostContentByRemoteID(rec.ParentPostID); err == nil && content != "" {
			fmt.Fprintf(&b, "\nYour original post:\n%s\n", content)
		}
		if prior, err := e.store.RepliesForPost(rec.ParentPostID, e.threadContext); err == nil && len(prior) > 0 {
			b.WriteString("\nEarlier replies in the thread:\n")
			for _, p := range prior {
				if p.ID == rec.ID {
					continue
				}
				fmt.Fprintf(&b, "- @%s: %s\n", p.AuthorHandle, p.Text)
			}
		}
	}
	fmt.Fprintf(&b, "\nThe comment to answer, from @%s:\n%s\n", rec.AuthorHandle, rec.Text)
	return b.String()
}

// send publishes the response and finalizes the record.
func (e *Engine) send(ctx context.Context, persona *store.Persona, rec *store.ReplyRecord, response string) error {
	token, _, err := e.vault.Resolve(persona.AccessToken, "access token for "+persona.ID)
	if err != nil {
		// Missing/broken credentials are a configuration failure; an external
		// alerting sweep owns retrying these.
		slog.Error("Reply send blocked by credential failure", "reply", rec.ID, "persona", persona.ID, "error", err)
		return e.store.MarkReplyFailed(rec.ID, "access token: "+err.Error(), false)
	}

	remoteID, err := e.pub.PublishReply(ctx, token, persona.PlatformUserID, rec.ProviderReplyID, response)
	if err != nil {
		retryable := true
		var pubErr *publish.PublishError
		if errors.As(err, &pubErr) && !pubErr.Transient {
			retryable = false
		}
		slog.Warn("Reply publish failed", "reply", rec.ID, "persona", persona.ID, "retryable", retryable, "error", err)
		if markErr := e.store.MarkReplyFailed(rec.ID, err.Error(), retryable); markErr != nil {
			return markErr
		}
		e.audit.Record(ctx, persona.ID, audit.ActionReplyFailed, rec.ID, err.Error())
		return nil
	}

	if err := e.store.MarkReplySent(rec.ID, response); err != nil {
		return err
	}
	e.audit.Record(ctx, persona.ID, audit.ActionReplySent, rec.ID, "remote_id="+remoteID)
	slog.Info("Reply sent", "reply", rec.ID, "persona", persona.ID, "remote_id", remoteID)
	return nil
}

// recordDecisionFailure maps a decision error onto the record's failure
// state: configuration errors are terminal for this component, provider
// errors re-enter eligibility on the next sweep.
func (e *Engine) recordDecisionFailure(rec *store.ReplyRecord, err error) error {
	retryable := true
	if errors.Is(err, generate.ErrNoCredential) {
		retryable = false
	}
	slog.Warn("Reply decision failed", "reply", rec.ID, "retryable", retryable, "error", err)
	return e.store.MarkReplyFailed(rec.ID, err.Error(), retryable)
}
