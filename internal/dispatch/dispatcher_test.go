package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/personapulse/personapulse/internal/audit"
	"github.com/personapulse/personapulse/internal/config"
	"github.com/personapulse/personapulse/internal/publish"
	"github.com/personapulse/personapulse/internal/reply"
	"github.com/personapulse/personapulse/internal/secrets"
	"github.com/personapulse/personapulse/internal/store"
)

type fakeGen struct {
	text  string
	err   error
	calls int
}

func (f *fakeGen) Generate(ctx context.Context, persona *store.Persona, policy, custom string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakePub struct {
	remoteID string
	err      error
	posts    []string
	replies  []string
}

func (f *fakePub) PublishPost(ctx context.Context, token, userID, text string) (string, error) {
	f.posts = append(f.posts, text)
	return f.remoteID, f.err
}

func (f *fakePub) PublishReply(ctx context.Context, token, userID, replyToID, text string) (string, error) {
	f.replies = append(f.replies, text)
	return f.remoteID, f.err
}

type fixture struct {
	store      *store.Store
	vault      *secrets.Vault
	gen        *fakeGen
	pub        *fakePub
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	vault := secrets.NewVault("dispatch-test-key")
	gen := &fakeGen{text: "Generated daily post."}
	pub := &fakePub{remoteID: "remote-1"}
	auditLog := audit.New(st, config.AuditConfig{})
	engine := reply.New(st, vault, gen, pub, auditLog, 10)
	return &fixture{
		store:      st,
		vault:      vault,
		gen:        gen,
		pub:        pub,
		dispatcher: New(st, vault, gen, pub, engine, auditLog, config.DispatcherConfig{}),
	}
}

func (f *fixture) persona(t *testing.T, mutate func(*store.Persona)) *store.Persona {
	t.Helper()
	token, err := f.vault.Encrypt("plain-access-token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	p := &store.Persona{
		Name:           "Techie",
		Handle:         "techie",
		PlatformUserID: "17890001",
		PostPrompt:     "Write about Go internals.",
		ReplyMode:      store.ReplyModeKeyword,
		Keywords:       []string{"thanks"},
		ReplyTemplate:  "You're welcome!",
		AccessToken:    token,
		Active:         true,
	}
	if mutate != nil {
		mutate(p)
	}
	if err := f.store.UpsertPersona(p); err != nil {
		t.Fatalf("upsert persona: %v", err)
	}
	return p
}

func (f *fixture) schedule(t *testing.T, personaID string, nextRun time.Time) *store.Schedule {
	t.Helper()
	sc := &store.Schedule{
		PersonaID: personaID,
		Kind:      "single",
		Slots:     []string{"09:00"},
		Active:    true,
		NextRunAt: nextRun,
	}
	if err := f.store.InsertSchedule(sc); err != nil {
		t.Fatalf("insert schedule: %v", err)
	}
	return sc
}

// ---------- schedule sweep ----------

func TestSweep_DueScheduleQueuesPostAndAdvances(t *testing.T) {
	f := newFixture(t)
	p := f.persona(t, nil)
	due := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sc := f.schedule(t, p.ID, due)
	now := due.Add(time.Minute)

	f.dispatcher.Sweep(context.Background(), now)

	if f.gen.calls != 1 {
		t.Fatalf("generator called %d times", f.gen.calls)
	}
	posts, err := f.store.ClaimDuePosts(now, 10)
	if err != nil {
		t.Fatalf("claim posts: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 queued post, got %d", len(posts))
	}
	post := posts[0]
	if post.Content != "Generated daily post." || !post.AutoGenerated {
		t.Fatalf("post wrong: %+v", post)
	}
	if !post.ScheduledFor.Equal(due) {
		t.Fatalf("scheduled_for = %v, want the slot the schedule was due for (%v)", post.ScheduledFor, due)
	}

	got, err := f.store.GetSchedule(sc.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if !got.NextRunAt.After(now) {
		t.Fatalf("schedule not advanced: next_run_at %v", got.NextRunAt)
	}

	// The schedule is no longer due; a second sweep does nothing.
	f.dispatcher.Sweep(context.Background(), now)
	if f.gen.calls != 1 {
		t.Fatalf("advanced schedule swept again (%d generator calls)", f.gen.calls)
	}
}

func TestSweep_GenerationFailureLeavesScheduleDue(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("provider down")
	f.gen.text = ""
	p := f.persona(t, nil)
	due := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sc := f.schedule(t, p.ID, due)
	now := due.Add(time.Minute)

	f.dispatcher.Sweep(context.Background(), now)

	got, _ := f.store.GetSchedule(sc.ID)
	if !got.NextRunAt.Equal(due) {
		t.Fatalf("failed generation must not advance the schedule: %v", got.NextRunAt)
	}
	posts, _ := f.store.ClaimDuePosts(now, 10)
	if len(posts) != 0 {
		t.Fatalf("failed generation queued a post: %+v", posts)
	}

	// The next sweep retries the same slot once generation recovers.
	f.gen.err = nil
	f.gen.text = "Recovered post."
	f.dispatcher.Sweep(context.Background(), now)
	posts, _ = f.store.ClaimDuePosts(now, 10)
	if len(posts) != 1 || posts[0].Content != "Recovered post." {
		t.Fatalf("recovery sweep did not queue the post: %+v", posts)
	}
}

func TestSweep_InactivePersonaSkipped(t *testing.T) {
	f := newFixture(t)
	p := f.persona(t, func(p *store.Persona) { p.Active = false })
	due := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.schedule(t, p.ID, due)

	f.dispatcher.Sweep(context.Background(), due.Add(time.Minute))
	if f.gen.calls != 0 {
		t.Fatal("generated content for inactive persona")
	}
}

// ---------- publish sweep ----------

func TestPublishSweep_PublishesDuePosts(t *testing.T) {
	f := newFixture(t)
	p := f.persona(t, nil)
	now := time.Now().UTC()
	post := &store.QueuedPost{PersonaID: p.ID, Content: "hello", ScheduledFor: now.Add(-time.Minute)}
	if err := f.store.EnqueuePost(post); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	f.dispatcher.PublishSweep(context.Background(), now)

	if len(f.pub.posts) != 1 || f.pub.posts[0] != "hello" {
		t.Fatalf("publish calls: %+v", f.pub.posts)
	}
	got, _ := f.store.GetPost(post.ID)
	if got.Status != store.PostStatusPublished || got.RemoteID != "remote-1" {
		t.Fatalf("post not finalized: %+v", got)
	}
	entries, _ := f.store.ListAudit(p.ID, 10)
	if len(entries) != 1 || entries[0].Action != audit.ActionPostPublished {
		t.Fatalf("missing audit entry: %+v", entries)
	}
}

func TestPublishSweep_FailureConsumesRetryBudget(t *testing.T) {
	f := newFixture(t)
	f.pub.err = &publish.PublishError{Step: "container", Status: 503, Transient: true, Message: "unavailable"}
	p := f.persona(t, nil)
	now := time.Now().UTC()
	post := &store.QueuedPost{PersonaID: p.ID, Content: "hello", ScheduledFor: now.Add(-time.Minute), MaxRetries: 2}
	if err := f.store.EnqueuePost(post); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	f.dispatcher.PublishSweep(context.Background(), now)
	got, _ := f.store.GetPost(post.ID)
	if got.Status != store.PostStatusQueued || got.RetryCount != 1 {
		t.Fatalf("after first failure: %+v", got)
	}

	f.dispatcher.PublishSweep(context.Background(), now)
	got, _ = f.store.GetPost(post.ID)
	if got.Status != store.PostStatusFailed || got.RetryCount != 2 {
		t.Fatalf("retry budget not enforced: %+v", got)
	}

	// Exhausted posts never re-enter the sweep.
	f.dispatcher.PublishSweep(context.Background(), now)
	if len(f.pub.posts) != 2 {
		t.Fatalf("failed post published again: %d attempts", len(f.pub.posts))
	}
}

// ---------- reply sweep ----------

func TestReplySweep_ProcessesUnhandledAndDue(t *testing.T) {
	f := newFixture(t)
	p := f.persona(t, nil)
	now := time.Now().UTC()

	fresh := &store.ReplyRecord{PersonaID: p.ID, ProviderReplyID: "c-1", Text: "thanks!"}
	if _, err := f.store.InsertReply(fresh); err != nil {
		t.Fatalf("insert: %v", err)
	}

	delayed := &store.ReplyRecord{PersonaID: p.ID, ProviderReplyID: "c-2", Text: "later"}
	if _, err := f.store.InsertReply(delayed); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if won, _ := f.store.ClaimReply(delayed.ID); !won {
		t.Fatal("claim lost")
	}
	if err := f.store.MarkReplyScheduled(delayed.ID, now.Add(-time.Minute), "cached answer"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	f.dispatcher.ReplySweep(context.Background(), now)

	if len(f.pub.replies) != 2 {
		t.Fatalf("expected 2 sends, got %v", f.pub.replies)
	}
	for _, id := range []string{fresh.ID, delayed.ID} {
		got, _ := f.store.GetReply(id)
		if got.Status != store.ReplyStatusSent || !got.Handled {
			t.Fatalf("record %s not finalized: %+v", id, got)
		}
	}
}

// ---------- invalidation ----------

func TestInvalidateFor(t *testing.T) {
	f := newFixture(t)
	p := f.persona(t, nil)
	now := time.Now().UTC()
	auto := &store.QueuedPost{PersonaID: p.ID, Content: "auto", ScheduledFor: now.Add(time.Hour), AutoGenerated: true}
	if err := f.store.EnqueuePost(auto); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := f.dispatcher.InvalidateFor(p.ID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := f.store.GetPost(auto.ID); err != store.ErrNotFound {
		t.Fatalf("stale auto post survived: %v", err)
	}
}
