package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"toproute/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the schema if it does not exist. Dev helper; production
// deployments run migrations out of band.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			trucks INT NOT NULL,
			tmax DOUBLE PRECISION NOT NULL,
			customers JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			instance_id UUID NOT NULL REFERENCES instances(id),
			status TEXT NOT NULL,
			params JSONB NOT NULL,
			solution JSONB,
			robust JSONB,
			stats JSONB,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			events JSONB NOT NULL,
			secret TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id UUID PRIMARY KEY,
			subscription_id UUID,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT,
			response_code INT,
			latency_ms INT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) CreateInstance(ctx context.Context, in model.Instance) (model.Instance, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt == "" {
		in.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO instances (id, name, trucks, tmax, customers) VALUES ($1,$2,$3,$4,$5)`,
		in.ID, in.Name, in.Trucks, in.TMax, toJSON(in.Customers))
	if err != nil {
		return model.Instance{}, err
	}
	return in, nil
}

func (p *Postgres) GetInstance(ctx context.Context, id string) (model.Instance, error) {
	var in model.Instance
	var customers []byte
	var created time.Time
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, name, trucks, tmax, customers, created_at FROM instances WHERE id=$1`, id)
	if err := row.Scan(&in.ID, &in.Name, &in.Trucks, &in.TMax, &customers, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return in, ErrNotFound
		}
		return in, err
	}
	_ = json.Unmarshal(customers, &in.Customers)
	in.CreatedAt = created.UTC().Format(time.RFC3339)
	return in, nil
}

func (p *Postgres) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	q := `SELECT id::text, name, trucks, tmax, jsonb_array_length(customers), created_at FROM instances`
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, q+` WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.InstanceOut{}
	var last string
	for rows.Next() {
		var it model.InstanceOut
		var created time.Time
		if err := rows.Scan(&it.ID, &it.Name, &it.Trucks, &it.TMax, &it.Nodes, &created); err != nil {
			return nil, "", err
		}
		it.CreatedAt = created.UTC().Format(time.RFC3339)
		out = append(out, it)
		last = it.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = "pending"
	}
	if run.CreatedAt == "" {
		run.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO runs (id, instance_id, status, params) VALUES ($1,$2,$3,$4)`,
		run.ID, run.InstanceID, run.Status, toJSON(run.Params))
	if err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, instance_id::text, status, params, solution, robust, stats, COALESCE(error,''), created_at, completed_at
		 FROM runs WHERE id=$1`, id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return run, err
}

func (p *Postgres) ListRuns(ctx context.Context, status, cursor string, limit int) ([]model.Run, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, instance_id::text, status, params, solution, robust, stats, COALESCE(error,''), created_at, completed_at FROM runs`
	var rows *sql.Rows
	var err error
	switch {
	case status != "" && cursor != "":
		rows, err = p.db.QueryContext(ctx, q+` WHERE status=$1 AND id::text > $2 ORDER BY id LIMIT $3`, status, cursor, limit)
	case status != "":
		rows, err = p.db.QueryContext(ctx, q+` WHERE status=$1 ORDER BY id LIMIT $2`, status, limit)
	case cursor != "":
		rows, err = p.db.QueryContext(ctx, q+` WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	default:
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	var last string
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, "", err
		}
		out = append(out, run)
		last = run.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.Run) error {
	var completed any
	if run.CompletedAt != "" {
		completed = run.CompletedAt
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE runs SET status=$2, solution=$3, robust=$4, stats=$5, error=$6, completed_at=$7 WHERE id=$1`,
		run.ID, run.Status, toJSONOrNull(run.Solution), toJSONOrNull(run.Robust), toJSONOrNull(run.Stats),
		nullIfEmpty(run.Error), completed)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRun(scan func(dest ...any) error) (model.Run, error) {
	var run model.Run
	var params, solution, robust, stats []byte
	var created time.Time
	var completed sql.NullTime
	if err := scan(&run.ID, &run.InstanceID, &run.Status, &params, &solution, &robust, &stats, &run.Error, &created, &completed); err != nil {
		return run, err
	}
	_ = json.Unmarshal(params, &run.Params)
	if len(solution) > 0 {
		run.Solution = &model.SolutionOut{}
		_ = json.Unmarshal(solution, run.Solution)
	}
	if len(robust) > 0 {
		run.Robust = &model.SolutionOut{}
		_ = json.Unmarshal(robust, run.Robust)
	}
	if len(stats) > 0 {
		run.Stats = &model.RunStats{}
		_ = json.Unmarshal(stats, run.Stats)
	}
	run.CreatedAt = created.UTC().Format(time.RFC3339)
	if completed.Valid {
		run.CompletedAt = completed.Time.UTC().Format(time.RFC3339)
	}
	return run, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		id, req.URL, toJSON(req.Events), req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE events @> $1::jsonb`,
		fmt.Sprintf("[%q]", eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []model.Subscription
	var last string
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
			return nil, "", err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	return err
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		 VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`,
		id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		 FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		 ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries`
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = p.db.QueryContext(ctx, q+` WHERE status=$1 ORDER BY id LIMIT $2`, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, lastErr, url string
		var attempts int
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid {
			item["nextAttemptAt"] = nextAt.Time
		}
		if lastErr != "" {
			item["lastError"] = lastErr
		}
		out = append(out, item)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE id=$1`, id)
	return err
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// toJSONOrNull keeps typed-nil pointers out of JSONB columns.
func toJSONOrNull(v any) any {
	switch x := v.(type) {
	case *model.SolutionOut:
		if x == nil {
			return nil
		}
	case *model.RunStats:
		if x == nil {
			return nil
		}
	}
	return toJSON(v)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
