// Package generate builds persona prompts and calls the generation provider
// with credential rotation. It performs no persistence: the only side effect
// is the outbound network call.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/personapulse/personapulse/internal/config"
	"github.com/personapulse/personapulse/internal/secrets"
	"github.com/personapulse/personapulse/internal/store"
)

// ErrNoCredential is returned when no configured generation key decrypts to a
// usable value. This is a configuration error; callers must not retry it
// automatically.
var ErrNoCredential = errors.New("no usable generation credential configured")

// Credential key naming: one primary key plus numbered fallbacks.
const (
	primaryKeyName    = "primary"
	fallbackKeyPrefix = "fallback"
)

// Generator produces persona-voiced text.
type Generator struct {
	vault    *secrets.Vault
	client   Client
	maxChars int
}

// New creates a Generator.
func New(vault *secrets.Vault, client Client, cfg config.GeneratorConfig) *Generator {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 2200
	}
	return &Generator{vault: vault, client: client, maxChars: maxChars}
}

// Generate produces text for the persona under the given policy and optional
// caller prompt. Credentials are probed in order (primary, then numbered
// fallbacks); a quota or rate-limit response advances to the next key with
// the same prompt, any other provider error aborts immediately — rotating on
// a non-quota error would only mask the real failure.
func (g *Generator) Generate(ctx context.Context, persona *store.Persona, policy, custom string) (string, error) {
	system := personaSystemPrompt(persona)
	prompt := buildPrompt(policy, custom, g.maxChars)

	var lastErr error
	tried := 0
	for _, name := range credentialOrder(persona.APIKeys) {
		apiKey, method, err := g.vault.Resolve(persona.APIKeys[name], "generation key "+name)
		if err != nil {
			slog.Warn("Generation key unusable, skipping", "persona", persona.ID, "key", name, "error", err)
			continue
		}
		if method == secrets.MethodPBKDF2 {
			slog.Debug("Generation key decrypted via legacy path", "persona", persona.ID, "key", name)
		}
		tried++

		text, err := g.client.Complete(ctx, apiKey, system, prompt)
		if err == nil {
			return clampOutput(text, g.maxChars), nil
		}
		var provErr *ProviderError
		if errors.As(err, &provErr) && provErr.Quota {
			slog.Warn("Generation key exhausted, rotating", "persona", persona.ID, "key", name, "status", provErr.Status)
			lastErr = err
			continue
		}
		return "", fmt.Errorf("generate for persona %s: %w", persona.ID, err)
	}

	if tried == 0 {
		return "", ErrNoCredential
	}
	return "", fmt.Errorf("all generation keys exhausted for persona %s: %w", persona.ID, lastErr)
}

// credentialOrder returns key names in probe order: primary first, then
// fallbacks by number, then anything else alphabetically.
func credentialOrder(keys map[string]string) []string {
	var fallbacks, others []string
	hasPrimary := false
	for name := range keys {
		switch {
		case name == primaryKeyName:
			hasPrimary = true
		case strings.HasPrefix(name, fallbackKeyPrefix):
			fallbacks = append(fallbacks, name)
		default:
			others = append(others, name)
		}
	}
	sort.Slice(fallbacks, func(i, j int) bool {
		ni, _ := strconv.Atoi(strings.TrimPrefix(fallbacks[i], fallbackKeyPrefix))
		nj, _ := strconv.Atoi(strings.TrimPrefix(fallbacks[j], fallbackKeyPrefix))
		return ni < nj
	})
	sort.Strings(others)

	out := make([]string, 0, len(keys))
	if hasPrimary {
		out = append(out, primaryKeyName)
	}
	out = append(out, fallbacks...)
	return append(out, others...)
}

// personaSystemPrompt embeds the persona's identity into the system message.
func personaSystemPrompt(p *store.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, posting on social media as yourself.\n", p.Name)
	if p.Voice != "" {
		fmt.Fprintf(&b, "Voice: %s\n", p.Voice)
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", p.Tone)
	}
	if len(p.Expertise) > 0 {
		fmt.Fprintf(&b, "Expertise: %s\n", strings.Join(p.Expertise, ", "))
	}
	if p.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", p.Personality)
	}
	return b.String()
}

func buildPrompt(policy, custom string, maxChars int) string {
	var b strings.Builder
	if policy != "" {
		b.WriteString(policy)
		b.WriteString("\n\n")
	}
	if custom != "" {
		b.WriteString(custom)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Constraints: stay under %d characters, use at most two line breaks, "+
		"no hashtag spam, no offensive or disallowed content, write only the post text itself.", maxChars)
	return b.String()
}

// clampOutput enforces the length ceiling and line-break limit on provider
// output, since models do not reliably honor prompt constraints.
func clampOutput(text string, maxChars int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 3 {
		lines = lines[:3]
		text = strings.Join(lines, "\n")
	}
	runes := []rune(text)
	if len(runes) > maxChars {
		text = strings.TrimSpace(string(runes[:maxChars]))
	}
	return text
}
