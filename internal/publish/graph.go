package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/personapulse/personapulse/internal/config"
)

// GraphPublisher talks to a Graph-style platform API: POST .../{user}/media to
// create a container, POST .../{user}/media_publish to publish it.
type GraphPublisher struct {
	apiBase    string
	httpClient *http.Client
}

// NewGraphPublisher creates a publisher from config.
func NewGraphPublisher(cfg config.PublisherConfig) *GraphPublisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GraphPublisher{
		apiBase:    strings.TrimSuffix(cfg.APIBase, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type idResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// PublishPost creates and publishes a text post.
func (p *GraphPublisher) PublishPost(ctx context.Context, token, userID, text string) (string, error) {
	params := url.Values{"media_type": {"TEXT"}, "text": {text}}
	return p.twoStep(ctx, token, userID, params)
}

// PublishReply creates and publishes a reply to an existing comment or post.
func (p *GraphPublisher) PublishReply(ctx context.Context, token, userID, replyToID, text string) (string, error) {
	params := url.Values{"media_type": {"TEXT"}, "text": {text}, "reply_to_id": {replyToID}}
	return p.twoStep(ctx, token, userID, params)
}

// twoStep runs container creation then publication. A failure in either step
// fails the whole send; a created-but-unpublished container is abandoned and
// expires server-side.
func (p *GraphPublisher) twoStep(ctx context.Context, token, userID string, params url.Values) (string, error) {
	containerID, err := p.call(ctx, token, "container",
		fmt.Sprintf("%s/%s/media", p.apiBase, url.PathEscape(userID)), params)
	if err != nil {
		return "", err
	}
	return p.call(ctx, token, "publish",
		fmt.Sprintf("%s/%s/media_publish", p.apiBase, url.PathEscape(userID)),
		url.Values{"creation_id": {containerID}})
}

func (p *GraphPublisher) call(ctx context.Context, token, step, endpoint string, params url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", step, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient, never success.
		return "", &PublishError{Step: step, Transient: true, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &PublishError{Step: step, Status: resp.StatusCode, Transient: true, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		var parsed idResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return "", &PublishError{Step: step, Status: resp.StatusCode, Transient: transient, Message: msg}
	}

	var parsed idResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &PublishError{Step: step, Status: resp.StatusCode, Message: "unparseable response"}
	}
	if parsed.ID == "" {
		return "", &PublishError{Step: step, Status: resp.StatusCode, Message: "response missing id"}
	}
	return parsed.ID, nil
}
