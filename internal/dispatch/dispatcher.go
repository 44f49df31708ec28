// Package dispatch runs the periodic sweeps: due schedules into queued posts,
// due posts into publishes, and unhandled or delay-expired replies into the
// reply engine. Sweeps are stateless and may overlap with other instances;
// every contended write goes through the store's conditional updates.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/personapulse/personapulse/internal/audit"
	"github.com/personapulse/personapulse/internal/config"
	"github.com/personapulse/personapulse/internal/publish"
	"github.com/personapulse/personapulse/internal/reply"
	"github.com/personapulse/personapulse/internal/schedule"
	"github.com/personapulse/personapulse/internal/secrets"
	"github.com/personapulse/personapulse/internal/store"
)

// TextGenerator is the slice of the content generator the dispatcher needs.
type TextGenerator interface {
	Generate(ctx context.Context, persona *store.Persona, policy, custom string) (string, error)
}

// Dispatcher owns the sweep loops.
type Dispatcher struct {
	store  *store.Store
	vault  *secrets.Vault
	gen    TextGenerator
	pub    publish.Publisher
	engine *reply.Engine
	audit  *audit.Logger
	cfg    config.DispatcherConfig
}

// New creates a Dispatcher.
func New(st *store.Store, vault *secrets.Vault, gen TextGenerator, pub publish.Publisher, engine *reply.Engine, auditLog *audit.Logger, cfg config.DispatcherConfig) *Dispatcher {
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = 50
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	return &Dispatcher{
		store:  st,
		vault:  vault,
		gen:    gen,
		pub:    pub,
		engine: engine,
		audit:  auditLog,
		cfg:    cfg,
	}
}

// Sweep turns every due, active schedule into a queued post and advances its
// next run. Post creation and schedule advance are one transaction: when
// generation fails neither happens, the schedule stays due, and the next
// sweep retries it rather than silently skipping a slot.
func (d *Dispatcher) Sweep(ctx context.Context, now time.Time) {
	due, err := d.store.DueSchedules(now, d.cfg.SweepLimit)
	if err != nil {
		slog.Error("Dispatcher schedule query failed", "error", err)
		return
	}

	for _, sc := range due {
		persona, err := d.store.GetPersona(sc.PersonaID)
		if err != nil {
			slog.Error("Dispatcher persona lookup failed", "schedule", sc.ID, "error", err)
			continue
		}
		if !persona.Active {
			continue
		}

		next, err := schedule.NextRun(schedule.Config{
			Kind:     schedule.Kind(sc.Kind),
			Slots:    sc.Slots,
			Timezone: sc.Timezone,
		}, now)
		if err != nil {
			slog.Error("Dispatcher schedule computation failed", "schedule", sc.ID, "error", err)
			continue
		}

		content, err := d.gen.Generate(ctx, persona, persona.PostPrompt, "")
		if err != nil {
			// Leave the schedule due; the next sweep retries generation.
			slog.Warn("Dispatcher content generation failed", "schedule", sc.ID, "persona", persona.ID, "error", err)
			continue
		}

		post := &store.QueuedPost{
			PersonaID:     persona.ID,
			Content:       content,
			ScheduledFor:  sc.NextRunAt,
			AutoGenerated: true,
		}
		won, err := d.store.EnqueueAndAdvance(post, sc.ID, sc.NextRunAt, next)
		if err != nil {
			slog.Error("Dispatcher enqueue failed", "schedule", sc.ID, "error", err)
			continue
		}
		if !won {
			// A concurrent sweep already advanced this schedule.
			continue
		}
		slog.Info("Post queued", "schedule", sc.ID, "persona", persona.ID, "post", post.ID, "next_run", next)
	}
}

// PublishSweep claims due queued posts and publishes them through the
// platform capability, honoring the retry budget.
func (d *Dispatcher) PublishSweep(ctx context.Context, now time.Time) {
	posts, err := d.store.ClaimDuePosts(now, d.cfg.SweepLimit)
	if err != nil {
		slog.Error("Publish sweep claim failed", "error", err)
		return
	}

	for _, post := range posts {
		persona, err := d.store.GetPersona(post.PersonaID)
		if err != nil {
			d.failPost(ctx, post, "persona lookup: "+err.Error())
			continue
		}
		token, _, err := d.vault.Resolve(persona.AccessToken, "access token for "+persona.ID)
		if err != nil {
			d.failPost(ctx, post, "access token: "+err.Error())
			continue
		}
		remoteID, err := d.pub.PublishPost(ctx, token, persona.PlatformUserID, post.Content)
		if err != nil {
			d.failPost(ctx, post, err.Error())
			continue
		}
		if err := d.store.MarkPostPublished(post.ID, remoteID); err != nil {
			slog.Error("Publish sweep mark failed", "post", post.ID, "error", err)
			continue
		}
		d.audit.Record(ctx, persona.ID, audit.ActionPostPublished, post.ID, "remote_id="+remoteID)
		slog.Info("Post published", "post", post.ID, "persona", persona.ID, "remote_id", remoteID)
	}
}

func (d *Dispatcher) failPost(ctx context.Context, post *store.QueuedPost, reason string) {
	slog.Warn("Post publish failed", "post", post.ID, "error", reason)
	if err := d.store.MarkPostFailed(post.ID, reason); err != nil {
		slog.Error("Post failure mark failed", "post", post.ID, "error", err)
		return
	}
	d.audit.Record(ctx, post.PersonaID, audit.ActionPostFailed, post.ID, reason)
}

// ReplySweep hands unhandled and delay-expired replies to the reply engine.
func (d *Dispatcher) ReplySweep(ctx context.Context, now time.Time) {
	if recs, err := d.store.UnhandledReplies(d.cfg.SweepLimit); err != nil {
		slog.Error("Reply sweep query failed", "error", err)
	} else if len(recs) > 0 {
		d.engine.ProcessBatch(ctx, recs)
	}

	due, err := d.store.DueScheduledReplies(now, d.cfg.SweepLimit)
	if err != nil {
		slog.Error("Scheduled reply query failed", "error", err)
		return
	}
	for _, rec := range due {
		if err := d.engine.SendScheduled(ctx, rec, now); err != nil {
			slog.Error("Scheduled reply send failed", "reply", rec.ID, "error", err)
		}
	}
}

// InvalidateFor removes stale auto-generated queued posts for a persona after
// a schedule edit, so old entries don't fire with obsolete timing intent.
func (d *Dispatcher) InvalidateFor(personaID string) error {
	n, err := d.store.InvalidateAutoPosts(personaID)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Stale auto posts invalidated", "persona", personaID, "count", n)
	}
	return nil
}

// Run starts the tick loop, sweeping everything each interval. Blocks until
// the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("Dispatcher started", "tick", d.cfg.TickInterval)
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case now := <-ticker.C:
			d.Sweep(ctx, now)
			d.PublishSweep(ctx, now)
			d.ReplySweep(ctx, now)
		}
	}
}
