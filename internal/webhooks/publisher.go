package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"toproute/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues one delivery per subscription matching the event type.
// Event types in use: run.completed, run.failed.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
	}
}
