package webhook

import (
	"encoding/json"
	"fmt"
)

// deliveryPayload is the Graph-style webhook delivery body. Each entry is
// addressed to one platform account; comment changes carry the inbound reply.
type deliveryPayload struct {
	Object string          `json:"object"`
	Entry  []deliveryEntry `json:"entry"`
}

type deliveryEntry struct {
	ID      string           `json:"id"` // Provider-assigned account id
	Time    int64            `json:"time"`
	Changes []deliveryChange `json:"changes"`
}

type deliveryChange struct {
	Field string        `json:"field"`
	Value deliveryValue `json:"value"`
}

type deliveryValue struct {
	ID   string `json:"id"` // Provider-assigned reply id
	Text string `json:"text"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"` // Parent post id
	} `json:"media"`
}

// fieldComments is the change field carrying replies.
const fieldComments = "comments"

func parseDelivery(body []byte) (*deliveryPayload, error) {
	var payload deliveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse delivery payload: %w", err)
	}
	return &payload, nil
}
