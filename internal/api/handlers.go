package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"toproute/internal/buildinfo"
	"toproute/internal/instance"
	"toproute/internal/metrics"
	"toproute/internal/model"
	"toproute/internal/top"
)

// InstancesHandler handles POST/GET /v1/instances.
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.InstanceIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateInstanceIn(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
			return
		}
		name := in.Name
		if name == "" {
			name = fmt.Sprintf("instance-%d", time.Now().Unix())
		}
		var rec model.Instance
		if in.Text != "" {
			p, err := instance.Load(name, strings.NewReader(in.Text))
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
				return
			}
			rec = instanceRecord(name, p)
		} else {
			rec = model.Instance{Name: name, Trucks: in.Trucks, TMax: in.TMax, Customers: in.Customers}
			if _, err := problemFromInstance(rec); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
				return
			}
		}
		created, err := s.Store.CreateInstance(r.Context(), rec)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create instance failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, model.InstanceOut{
			ID: created.ID, Name: created.Name, Trucks: created.Trucks,
			TMax: created.TMax, Nodes: len(created.Customers), CreatedAt: created.CreatedAt,
		})
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := queryInt(r, "limit", 100)
		items, next, err := s.Store.ListInstances(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// InstanceByIDHandler handles GET /v1/instances/{id}.
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	in, err := s.Store.GetInstance(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// SolveHandler handles POST /v1/solve: creates a run and solves it in the
// background, streaming incumbent updates through the broker.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	inst, err := s.Store.GetInstance(r.Context(), req.InstanceID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
		return
	}
	p, err := problemFromInstance(inst)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Unsolvable instance", err.Error(), r.URL.Path)
		return
	}
	run, err := s.Store.CreateRun(r.Context(), model.Run{InstanceID: inst.ID, Params: req})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create run failed", err.Error(), r.URL.Path)
		return
	}
	go s.executeRun(run, p)
	writeJSON(w, http.StatusAccepted, run)
}

// executeRun drives one solver run to completion. It owns the run row from
// here on; the request that created it has already returned.
func (s *Server) executeRun(run model.Run, p *top.Problem) {
	ctx := context.Background()
	run.Status = "running"
	_ = s.Store.UpdateRun(ctx, run)

	opts := s.solveOptions(run.Params)
	opts.OnImprovement = func(e top.ProgressEvent) {
		metrics.SolverImprovements.Inc()
		s.Broker.Publish(run.ID, SSEEvent{Type: "run.progress", Data: map[string]any{
			"runId":     run.ID,
			"iteration": e.Iteration,
			"reward":    e.Reward,
			"length":    e.Length,
			"routes":    e.Routes,
			"unrouted":  e.Unrouted,
		}})
	}

	res, err := top.Solve(ctx, p, opts)
	run.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		_ = s.Store.UpdateRun(ctx, run)
		metrics.SolverRuns.WithLabelValues("failed").Inc()
		s.Broker.Publish(run.ID, SSEEvent{Type: "run.failed", Data: map[string]any{"runId": run.ID, "error": run.Error}})
		s.Pub.Emit(ctx, "run.failed", map[string]any{"runId": run.ID, "error": run.Error})
		log.Printf("run %s failed: %v", run.ID, err)
		return
	}

	run.Status = "completed"
	run.Solution = solutionOut(p, res.Best)
	if res.BestRobust != nil {
		run.Robust = solutionOut(p, res.BestRobust)
	}
	run.Stats = &model.RunStats{
		Iterations:         res.Stats.Iterations,
		Improvements:       res.Stats.Improvements,
		Alpha:              res.Stats.Alpha,
		BestReward:         res.Stats.BestReward,
		BestLength:         res.Stats.BestLength,
		BestExpectedReward: res.Stats.BestExpectedReward,
		ElapsedMs:          res.Stats.Elapsed.Milliseconds(),
	}
	_ = s.Store.UpdateRun(ctx, run)

	metrics.SolverRuns.WithLabelValues("completed").Inc()
	metrics.SolverIterations.Add(float64(res.Stats.Iterations))
	metrics.SolveDuration.Observe(res.Stats.Elapsed.Seconds())

	data := map[string]any{
		"runId":      run.ID,
		"instanceId": run.InstanceID,
		"reward":     run.Solution.Reward,
		"length":     run.Solution.Length,
		"routes":     len(run.Solution.Routes),
		"unrouted":   len(run.Solution.Unrouted),
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: "run.completed", Data: data})
	s.Pub.Emit(ctx, "run.completed", data)
}

// solveOptions merges request parameters over the configured defaults.
func (s *Server) solveOptions(req model.SolveRequest) top.SolveOptions {
	def := s.Cfg.Solver
	opts := top.SolveOptions{
		Iterations: def.Iterations,
		Workers:    def.Workers,
		Seed:       req.Seed,
		Alpha:      def.Alpha,
		BetaStart:  def.BetaStart,
		BetaMin:    def.BetaMin,
		BetaStep:   def.BetaStep,
		WindowSize: def.WindowSize,
		Trials:     def.Trials,
	}
	if def.TimeBudgetMs > 0 {
		opts.TimeBudget = time.Duration(def.TimeBudgetMs) * time.Millisecond
	}
	if def.NoiseLevel > 0 {
		opts.Noise = top.NoiseModel{Level: def.NoiseLevel}
	}
	if req.Iterations > 0 {
		opts.Iterations = req.Iterations
	}
	if req.TimeBudgetMs > 0 {
		opts.TimeBudget = time.Duration(req.TimeBudgetMs) * time.Millisecond
	}
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	if req.Alpha != nil {
		opts.Alpha = *req.Alpha
	}
	if req.Trials > 0 {
		opts.Trials = req.Trials
	}
	if req.NoiseLevel > 0 {
		opts.Noise = top.NoiseModel{Level: req.NoiseLevel}
	}
	return opts
}

// RunsHandler handles GET /v1/runs.
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 100)
	items, next, err := s.Store.ListRuns(r.Context(), status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id}, the SSE stream at
// /v1/runs/{id}/events/stream, and the WebSocket bridge at /v1/runs/{id}/ws.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) == 3 && parts[1] == "events" && parts[2] == "stream" {
		s.streamRunEvents(w, r, id)
		return
	}
	if len(parts) == 2 && parts[1] == "ws" {
		s.RunWSHandler(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Run not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.Store.GetRun(r.Context(), id); err != nil {
		writeProblem(w, http.StatusNotFound, "Run not found", err.Error(), r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":%q,\"ts\":%q}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// EvaluateHandler handles POST /v1/evaluate: a synchronous robustness report
// for a caller-supplied solution.
func (s *Server) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateEvaluateRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid evaluate request", err.Error(), r.URL.Path)
		return
	}
	inst, err := s.Store.GetInstance(r.Context(), req.InstanceID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Instance not found", err.Error(), r.URL.Path)
		return
	}
	p, err := problemFromInstance(inst)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Unsolvable instance", err.Error(), r.URL.Path)
		return
	}
	sol, err := solutionFromRoutes(p, req.Routes)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solution", err.Error(), r.URL.Path)
		return
	}
	trials := req.Trials
	if trials <= 0 {
		trials = 1000
	}
	noise := top.DefaultNoise()
	if req.NoiseLevel > 0 {
		noise = top.NoiseModel{Level: req.NoiseLevel}
	}
	rep, err := top.Evaluate(p, sol, trials, noise, seededRng(time.Now().UnixNano()))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Evaluation failed", err.Error(), r.URL.Path)
		return
	}
	out := model.RobustnessOut{
		Trials:              rep.Trials,
		DeterministicReward: rep.DeterministicReward,
		ExpectedReward:      rep.ExpectedReward,
		RewardStdDev:        rep.RewardStdDev,
	}
	for _, rr := range rep.Routes {
		out.Routes = append(out.Routes, model.RouteReportOut{
			Reward: rr.Reward, Length: rr.Length,
			OnTimeProb: rr.OnTimeProb, ExpectedReward: rr.ExpectedReward,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions (admin only).
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := queryInt(r, "limit", 100)
		items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id} (admin only).
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 100)
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry.
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryWebhookDelivery(r.Context(), id); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func seededRng(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// instanceRecord converts a parsed problem back to its stored form.
func instanceRecord(name string, p *top.Problem) model.Instance {
	customers := make([]model.CustomerIn, 0, p.N())
	for i := 0; i < p.N(); i++ {
		c := p.Customers[i]
		customers = append(customers, model.CustomerIn{X: c.X, Y: c.Y, Reward: c.Reward})
	}
	return model.Instance{Name: name, Trucks: p.Trucks, TMax: p.TMax, Customers: customers}
}

func problemFromInstance(in model.Instance) (*top.Problem, error) {
	customers := make([]top.Customer, 0, len(in.Customers))
	for i, c := range in.Customers {
		customers = append(customers, top.Customer{ID: i, X: c.X, Y: c.Y, Reward: c.Reward})
	}
	return top.NewProblem(in.Name, in.Trucks, in.TMax, customers)
}

// solutionFromRoutes rebuilds a solution from raw route sequences and checks
// its invariants before any scoring.
func solutionFromRoutes(p *top.Problem, routes [][]int) (*top.Solution, error) {
	sol := top.NewSolution(p)
	for _, seq := range routes {
		sol.Routes = append(sol.Routes, top.Route{Seq: append([]int(nil), seq...)})
		for _, c := range seq {
			if c != p.Depot() && c != p.Sink() {
				delete(sol.Unrouted, c)
			}
		}
	}
	if err := sol.Validate(p); err != nil {
		return nil, err
	}
	return sol, nil
}

func solutionOut(p *top.Problem, sol *top.Solution) *model.SolutionOut {
	out := &model.SolutionOut{
		Reward:   sol.Reward(p),
		Length:   sol.Length(p),
		Unrouted: sol.UnroutedList(),
		Routes:   make([][]int, 0, len(sol.Routes)),
	}
	for _, rt := range sol.Routes {
		out.Routes = append(out.Routes, append([]int(nil), rt.Seq...))
	}
	return out
}
