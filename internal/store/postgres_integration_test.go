//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"toproute/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	in, err := p.CreateInstance(t.Context(), model.Instance{
		Name: "it-instance", Trucks: 2, TMax: 30,
		Customers: []model.CustomerIn{{X: 0, Y: 0}, {X: 1, Y: 1, Reward: 5}, {X: 2, Y: 0}},
	})
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	run, err := p.CreateRun(t.Context(), model.Run{InstanceID: in.ID, Params: model.SolveRequest{InstanceID: in.ID, Iterations: 10}})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run.Status = "completed"
	run.Solution = &model.SolutionOut{Routes: [][]int{{0, 1, 2}}, Reward: 5, Length: 2.83, Unrouted: []int{}}
	run.Stats = &model.RunStats{Iterations: 10, BestReward: 5}
	if err := p.UpdateRun(t.Context(), run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	got, err := p.GetRun(t.Context(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != "completed" || got.Solution == nil || got.Solution.Reward != 5 {
		t.Fatalf("unexpected run after update: %+v", got)
	}
	if _, _, err := p.ListRuns(t.Context(), "", "", 1); err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
}
