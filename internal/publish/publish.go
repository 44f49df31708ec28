// Package publish is the outbound "publish post" / "publish reply" capability.
// The platform API is the two-step container model: create a content
// container, then publish it. Both steps must succeed for a send to count.
package publish

import (
	"context"
	"fmt"
)

// Publisher sends content to the social platform on behalf of a persona,
// authenticated by a bearer credential.
type Publisher interface {
	// PublishPost publishes standalone content and returns the platform id.
	PublishPost(ctx context.Context, token, userID, text string) (string, error)
	// PublishReply publishes text as a reply to an existing comment/post.
	PublishReply(ctx context.Context, token, userID, replyToID, text string) (string, error)
}

// PublishError is a platform publish failure. Transient failures (timeouts,
// 5xx, throttling) are retried by the next sweep; permanent ones are not.
type PublishError struct {
	Step      string // "container" or "publish"
	Status    int
	Transient bool
	Message   string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s step failed (status %d): %s", e.Step, e.Status, e.Message)
}
