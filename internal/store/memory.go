package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"toproute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	instances  map[string]model.Instance
	instOrder  []string // creation order, for list pagination
	runs       map[string]model.Run
	runOrder   []string
	subs       []model.Subscription
	deliveries map[string]*memDelivery
	delivOrder []string
}

func NewMemory() *Memory {
	return &Memory{
		instances:  map[string]model.Instance{},
		runs:       map[string]model.Run{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func (m *Memory) CreateInstance(ctx context.Context, in model.Instance) (model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt == "" {
		in.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	m.instances[in.ID] = in
	m.instOrder = append(m.instOrder, in.ID)
	return in, nil
}

func (m *Memory) GetInstance(ctx context.Context, id string) (model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok {
		return model.Instance{}, ErrNotFound
	}
	return in, nil
}

func (m *Memory) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.instOrder, cursor)
	out := []model.InstanceOut{}
	var next string
	for i := start; i < len(m.instOrder) && len(out) < limit; i++ {
		in := m.instances[m.instOrder[i]]
		out = append(out, model.InstanceOut{
			ID: in.ID, Name: in.Name, Trucks: in.Trucks, TMax: in.TMax,
			Nodes: len(in.Customers), CreatedAt: in.CreatedAt,
		})
		next = in.ID
	}
	if start+len(out) >= len(m.instOrder) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = "pending"
	}
	if run.CreatedAt == "" {
		run.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	m.runs[run.ID] = run
	m.runOrder = append(m.runOrder, run.ID)
	return run, nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) ListRuns(ctx context.Context, status, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.runOrder, cursor)
	out := []model.Run{}
	var next string
	for i := start; i < len(m.runOrder) && len(out) < limit; i++ {
		run := m.runs[m.runOrder[i]]
		if status == "" || run.Status == status {
			out = append(out, run)
		}
		next = run.ID
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i := range m.subs {
			if m.subs[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(m.subs) {
		end = len(m.subs)
	}
	items := append([]model.Subscription(nil), m.subs[start:end]...)
	next := ""
	if end < len(m.subs) {
		next = m.subs[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, SubscriptionID: subscriptionID, EventType: eventType,
			URL: url, Secret: secret, Payload: payload, Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.delivOrder = append(m.delivOrder, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.delivOrder {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.deliveries[id]; d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.delivOrder {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.deliveries[id]; d != nil {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
	}
	return nil
}

func cursorIndex(order []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range order {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}
