package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"toproute/internal/auth"
	"toproute/internal/config"
	"toproute/internal/model"
	"toproute/internal/store"
	"toproute/internal/webhooks"
)

const testInstanceText = `2 60 6
0 0 0
10 5 20
20 10 30
15 20 25
5 15 10
25 5 15
10 25 20
30 0 0
`

func newTestServer() *Server {
	st := store.NewMemory()
	return &Server{
		Store:  st,
		Pub:    webhooks.NewPublisher(st),
		Auth:   &auth.Verifier{Mode: "dev"},
		Broker: NewBroker(),
		Cfg:    config.Default(),
	}
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func createInstance(t *testing.T, s *Server) string {
	t.Helper()
	rec := postJSON(t, s.InstancesHandler, "/v1/instances", model.InstanceIn{Name: "test", Text: testInstanceText})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create instance: %d %s", rec.Code, rec.Body.String())
	}
	var out model.InstanceOut
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.ID == "" {
		t.Fatal("instance id empty")
	}
	return out.ID
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected healthz body: %s", rec.Body.String())
	}
	rec = httptest.NewRecorder()
	s.ReadyHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}

func TestInstanceCreateFromText(t *testing.T) {
	s := newTestServer()
	id := createInstance(t, s)

	rec := httptest.NewRecorder()
	s.InstanceByIDHandler(rec, httptest.NewRequest(http.MethodGet, "/v1/instances/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get instance: %d %s", rec.Code, rec.Body.String())
	}
	var inst model.Instance
	if err := json.Unmarshal(rec.Body.Bytes(), &inst); err != nil {
		t.Fatal(err)
	}
	if inst.Trucks != 2 || inst.TMax != 60 || len(inst.Customers) != 8 {
		t.Fatalf("unexpected instance: %+v", inst)
	}

	rec = httptest.NewRecorder()
	s.InstancesHandler(rec, httptest.NewRequest(http.MethodGet, "/v1/instances", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list instances: %d", rec.Code)
	}
	var list struct {
		Items []model.InstanceOut `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].Nodes != 8 {
		t.Fatalf("unexpected list: %+v", list.Items)
	}
}

func TestInstanceCreateFromJSON(t *testing.T) {
	s := newTestServer()
	in := model.InstanceIn{
		Name: "parsed", Trucks: 1, TMax: 100,
		Customers: []model.CustomerIn{{X: 0, Y: 0}, {X: 5, Y: 0, Reward: 10}, {X: 10, Y: 0}},
	}
	rec := postJSON(t, s.InstancesHandler, "/v1/instances", in)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
}

func TestInstanceCreateRejectsBadInput(t *testing.T) {
	s := newTestServer()
	cases := []model.InstanceIn{
		{Text: "garbage header"},
		{Trucks: 0, TMax: 10, Customers: []model.CustomerIn{{}, {}}},
		{Trucks: 1, TMax: 10, Customers: []model.CustomerIn{{}}},
		{Trucks: 1, TMax: 10, Customers: []model.CustomerIn{{}, {Reward: -1}, {}}},
	}
	for i, in := range cases {
		rec := postJSON(t, s.InstancesHandler, "/v1/instances", in)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d %s", i, rec.Code, rec.Body.String())
		}
	}
}

func TestSolveLifecycle(t *testing.T) {
	s := newTestServer()
	id := createInstance(t, s)

	rec := postJSON(t, s.SolveHandler, "/v1/solve", model.SolveRequest{
		InstanceID: id, Iterations: 200, Seed: 42, Workers: 2,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("solve: %d %s", rec.Code, rec.Body.String())
	}
	var run model.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Status != "pending" {
		t.Fatalf("expected pending, got %s", run.Status)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		got, err := s.Store.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == "completed" {
			if got.Solution == nil || got.Stats == nil {
				t.Fatalf("completed run missing solution or stats: %+v", got)
			}
			if got.Solution.Reward <= 0 {
				t.Fatalf("expected positive reward, got %v", got.Solution.Reward)
			}
			if len(got.Solution.Routes) > 2 {
				t.Fatalf("more routes than trucks: %d", len(got.Solution.Routes))
			}
			if got.Stats.Iterations != 200 {
				t.Fatalf("expected 200 iterations, got %d", got.Stats.Iterations)
			}
			return
		}
		if got.Status == "failed" {
			t.Fatalf("run failed: %s", got.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish, status %s", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSolveValidation(t *testing.T) {
	s := newTestServer()
	rec := postJSON(t, s.SolveHandler, "/v1/solve", model.SolveRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing instanceId, got %d", rec.Code)
	}
	rec = postJSON(t, s.SolveHandler, "/v1/solve", model.SolveRequest{InstanceID: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown instance, got %d", rec.Code)
	}
}

func TestEvaluateHandler(t *testing.T) {
	s := newTestServer()
	id := createInstance(t, s)

	rec := postJSON(t, s.EvaluateHandler, "/v1/evaluate", model.EvaluateRequest{
		InstanceID: id,
		Routes:     [][]int{{0, 1, 7}},
		Trials:     200,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate: %d %s", rec.Code, rec.Body.String())
	}
	var out model.RobustnessOut
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Trials != 200 {
		t.Fatalf("expected 200 trials, got %d", out.Trials)
	}
	if out.DeterministicReward != 20 {
		t.Fatalf("expected deterministic reward 20, got %v", out.DeterministicReward)
	}
	if len(out.Routes) != 1 {
		t.Fatalf("expected 1 route report, got %d", len(out.Routes))
	}

	// A route visiting an unknown customer is rejected.
	rec = postJSON(t, s.EvaluateHandler, "/v1/evaluate", model.EvaluateRequest{
		InstanceID: id,
		Routes:     [][]int{{0, 99, 7}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad route, got %d", rec.Code)
	}
}

func TestSubscriptionsRequireAdmin(t *testing.T) {
	s := newTestServer()
	body, _ := json.Marshal(model.SubscriptionRequest{URL: "https://example.com/hook", Events: []string{"run.completed"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.SubscriptionsHandler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without admin, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	req.Header.Set("X-Role", "admin")
	rec = httptest.NewRecorder()
	s.SubscriptionsHandler(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 as admin, got %d %s", rec.Code, rec.Body.String())
	}
	var sub model.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatal(err)
	}

	// Bearer token in dev mode carries the role directly.
	req = httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
	req.Header.Set("Authorization", "Bearer admin")
	rec = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRunEventsStream(t *testing.T) {
	s := newTestServer()
	run, err := s.Store.CreateRun(context.Background(), model.Run{InstanceID: "i1", Params: model.SolveRequest{InstanceID: "i1"}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.ID+"/events/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunByIDHandler(rec, req)
	}()

	// Give the handler time to subscribe before publishing.
	time.Sleep(100 * time.Millisecond)
	s.Broker.Publish(run.ID, SSEEvent{Type: "run.progress", Data: map[string]any{"reward": 42.0}})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: heartbeat") {
		t.Fatalf("missing heartbeat in stream: %s", body)
	}
	if !strings.Contains(body, "event: run.progress") || !strings.Contains(body, `"reward":42`) {
		t.Fatalf("missing progress event in stream: %s", body)
	}
}

func TestRunByIDNotFound(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	s.RunByIDHandler(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
