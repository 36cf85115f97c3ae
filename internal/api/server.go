package api

import (
	"context"
	"strings"

	"toproute/internal/auth"
	"toproute/internal/config"
	"toproute/internal/store"
	"toproute/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Cfg    config.Config
}

// NewServer wires the server from config: memory store unless a postgres DSN
// is set, in-process broker unless a redis URL is set.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = pg
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		broker = rb
	} else {
		broker = NewBroker()
	}
	return &Server{
		Store:  s,
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifierFromEnv(),
		Broker: broker,
		Cfg:    cfg,
	}, nil
}

// NewWebhookWorker creates the background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
