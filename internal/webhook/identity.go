package webhook

import (
	"strings"

	"github.com/personapulse/personapulse/internal/store"
)

// isOwnIdentity reports whether an inbound reply was authored by the persona
// itself. Precedence: platform user id first (authoritative when both sides
// carry one), then the handle, case-insensitively and ignoring a leading @.
// A persona replying to itself must not re-trigger automation.
func isOwnIdentity(persona *store.Persona, authorID, authorHandle string) bool {
	if persona.PlatformUserID != "" && authorID != "" {
		return persona.PlatformUserID == authorID
	}
	if persona.Handle != "" && authorHandle != "" {
		return strings.EqualFold(
			strings.TrimPrefix(persona.Handle, "@"),
			strings.TrimPrefix(authorHandle, "@"),
		)
	}
	return false
}
