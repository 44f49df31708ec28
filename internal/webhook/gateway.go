// Package webhook is the inbound gateway for platform reply callbacks. Every
// request passes size and rate admission before any parsing or decryption,
// then the subscription handshake (GET) or the signed-delivery path (POST).
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/personapulse/personapulse/internal/config"
	"github.com/personapulse/personapulse/internal/secrets"
	"github.com/personapulse/personapulse/internal/store"
)

// ReplyProcessor is the optional synchronous hand-off into reply automation
// for records the gateway just inserted.
type ReplyProcessor interface {
	ProcessBatch(ctx context.Context, recs []*store.ReplyRecord)
}

// Gateway authenticates and ingests webhook callbacks.
type Gateway struct {
	store     *store.Store
	vault     *secrets.Vault
	processor ReplyProcessor
	cfg       config.GatewayConfig
	gate      *RateGate
	now       func() time.Time
}

// New creates a Gateway. processor may be nil; records are then left for the
// sweep to pick up.
func New(st *store.Store, vault *secrets.Vault, processor ReplyProcessor, cfg config.GatewayConfig) *Gateway {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.TimestampTolerance <= 0 {
		cfg.TimestampTolerance = 5 * time.Minute
	}
	return &Gateway{
		store:     st,
		vault:     vault,
		processor: processor,
		cfg:       cfg,
		gate:      NewRateGate(cfg.RatePerMinute, cfg.RateBurst),
		now:       time.Now,
	}
}

// Handler returns the HTTP handler for the gateway.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			g.handleVerify(w, r)
		case http.MethodPost:
			g.handleDelivery(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	return mux
}

// handleVerify answers the subscription handshake: echo the challenge only
// when the supplied verify token matches an active persona's token.
func (g *Gateway) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	personas, err := g.store.ListActivePersonas()
	if err != nil {
		slog.Error("Handshake persona lookup failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for _, p := range personas {
		if p.VerifyToken != "" && secrets.ConstantTimeEquals(p.VerifyToken, token) {
			slog.Info("Webhook subscription verified", "persona", p.ID)
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, challenge)
			return
		}
	}
	slog.Warn("Webhook handshake rejected", "remote", clientKey(r))
	http.Error(w, "forbidden", http.StatusForbidden)
}

// handleDelivery processes a signed delivery. Admission checks run first on
// attacker-controlled input; signature verification happens over the raw body
// before any payload field is trusted.
func (g *Gateway) handleDelivery(w http.ResponseWriter, r *http.Request) {
	caller := clientKey(r)
	if !g.gate.Allow(caller) {
		slog.Warn("Webhook rate limited", "remote", caller)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes))
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	if ts := strings.TrimSpace(r.Header.Get("X-Timestamp")); ts != "" {
		if !g.timestampFresh(ts) {
			slog.Warn("Webhook timestamp outside tolerance", "remote", caller)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if strings.TrimSpace(signature) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	personas, err := g.store.ListActivePersonas()
	if err != nil {
		slog.Error("Delivery persona lookup failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	authenticated := g.authenticate(body, signature, personas)
	if len(authenticated) == 0 {
		slog.Warn("Webhook signature rejected", "remote", caller)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	payload, err := parseDelivery(body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	inserted := g.fanOut(payload, authenticated)
	if g.cfg.ProcessInline && g.processor != nil && len(inserted) > 0 {
		g.processor.ProcessBatch(r.Context(), inserted)
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

// authenticate returns the personas whose decrypted webhook secret verifies
// the body signature. A persona whose secret fails to decrypt is skipped,
// never treated as unsigned-OK.
func (g *Gateway) authenticate(body []byte, signature string, personas []*store.Persona) map[string]*store.Persona {
	out := map[string]*store.Persona{}
	for _, p := range personas {
		if p.WebhookSecret == "" {
			continue
		}
		secret, _, err := g.vault.Resolve(p.WebhookSecret, "webhook secret for "+p.ID)
		if err != nil {
			slog.Error("Webhook secret decrypt failed", "persona", p.ID, "error", err)
			continue
		}
		if secrets.VerifySignature(body, signature, secret) {
			out[p.ID] = p
		}
	}
	return out
}

// fanOut inserts a reply record for every authenticated persona each entry
// addresses. One failing persona or change never blocks the rest.
func (g *Gateway) fanOut(payload *deliveryPayload, authenticated map[string]*store.Persona) []*store.ReplyRecord {
	var inserted []*store.ReplyRecord
	for _, entry := range payload.Entry {
		for _, persona := range authenticated {
			if persona.PlatformUserID != entry.ID {
				continue
			}
			for _, change := range entry.Changes {
				if change.Field != fieldComments || change.Value.ID == "" {
					continue
				}
				v := change.Value
				if isOwnIdentity(persona, v.From.ID, v.From.Username) {
					slog.Debug("Discarding self-reply", "persona", persona.ID, "reply", v.ID)
					continue
				}
				rec := &store.ReplyRecord{
					PersonaID:       persona.ID,
					ProviderReplyID: v.ID,
					AuthorID:        v.From.ID,
					AuthorHandle:    v.From.Username,
					ParentPostID:    v.Media.ID,
					Text:            v.Text,
					ReceivedAt:      g.now().UTC(),
				}
				ok, err := g.store.InsertReply(rec)
				if err != nil {
					slog.Error("Reply insert failed", "persona", persona.ID, "reply", v.ID, "error", err)
					continue
				}
				if !ok {
					// Duplicate delivery of the same provider reply id.
					continue
				}
				inserted = append(inserted, rec)
			}
		}
	}
	return inserted
}

func (g *Gateway) timestampFresh(raw string) bool {
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	delta := g.now().Sub(time.Unix(unix, 0))
	if delta < 0 {
		delta = -delta
	}
	return delta <= g.cfg.TimestampTolerance
}

// clientKey identifies the caller for rate limiting: the first forwarded
// address when present, else the connection's remote host.
func clientKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
