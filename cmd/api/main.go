package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"toproute/internal/api"
	"toproute/internal/config"
	"toproute/internal/integrations"
	"toproute/internal/integrations/instancedir"
	"toproute/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	if cfg.InstanceDir != "" {
		src := instancedir.New(cfg.InstanceDir)
		src.Warn = func(path string, err error) { log.Printf("skipping %s: %v", path, err) }
		n, err := integrations.Import(context.Background(), srv.Store, src)
		if err != nil {
			log.Fatalf("instance import: %v", err)
		}
		log.Printf("imported %d instances from %s", n, cfg.InstanceDir)
	}

	mux := http.NewServeMux()

	// Instances
	mux.HandleFunc("/v1/instances", srv.InstancesHandler)
	mux.HandleFunc("/v1/instances/", srv.InstanceByIDHandler)

	// Solver
	mux.HandleFunc("/v1/solve", srv.SolveHandler)
	mux.HandleFunc("/v1/runs", srv.RunsHandler)
	mux.HandleFunc("/v1/runs/", srv.RunByIDHandler) // includes /events/stream and /ws
	mux.HandleFunc("/v1/evaluate", srv.EvaluateHandler)

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Health
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Admin
	mux.HandleFunc("/v1/admin/webhook-deliveries", srv.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", srv.WebhookDeliveryRetryHandler)

	handler := logMiddleware(api.MetricsMiddleware(api.RateLimitMiddleware(cfg.RateLimitRPS, mux)))

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	worker := srv.NewWebhookWorker()
	worker.Start()

	log.Printf("API listening on %s", cfg.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
