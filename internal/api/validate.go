package api

import (
	"fmt"

	"toproute/internal/model"
)

func validateSolveRequest(req *model.SolveRequest) error {
	if req.InstanceID == "" {
		return fmt.Errorf("instanceId is required")
	}
	if req.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if req.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if req.Alpha != nil && (*req.Alpha < 0 || *req.Alpha > 1) {
		return fmt.Errorf("alpha must be in [0,1]")
	}
	if req.Trials < 0 {
		return fmt.Errorf("trials must be >= 0")
	}
	if req.NoiseLevel < 0 {
		return fmt.Errorf("noiseLevel must be >= 0")
	}
	return nil
}

func validateInstanceIn(in *model.InstanceIn) error {
	if in.Text != "" {
		return nil // parsed by the instance loader, which validates itself
	}
	if in.Trucks < 1 {
		return fmt.Errorf("trucks must be >= 1")
	}
	if in.TMax < 0 {
		return fmt.Errorf("tmax must be >= 0")
	}
	if len(in.Customers) < 2 {
		return fmt.Errorf("customers must include at least a depot and a sink")
	}
	for i, c := range in.Customers {
		if c.Reward < 0 {
			return fmt.Errorf("customer %d: reward must be >= 0", i)
		}
	}
	return nil
}

func validateEvaluateRequest(req *model.EvaluateRequest) error {
	if req.InstanceID == "" {
		return fmt.Errorf("instanceId is required")
	}
	if len(req.Routes) == 0 {
		return fmt.Errorf("routes must not be empty")
	}
	if req.Trials < 0 {
		return fmt.Errorf("trials must be >= 0")
	}
	if req.NoiseLevel < 0 {
		return fmt.Errorf("noiseLevel must be >= 0")
	}
	return nil
}
