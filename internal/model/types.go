// Package model holds the API-facing types shared by the handlers and the
// persistence layer.
package model

// CustomerIn is one node of an uploaded instance: depot first, sink last,
// servable customers in between.
type CustomerIn struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Reward float64 `json:"reward,omitempty"`
}

// InstanceIn is the body of POST /v1/instances. Either Text carries the raw
// line-oriented instance format, or Trucks/TMax/Customers carry the parsed
// form directly.
type InstanceIn struct {
	Name      string       `json:"name,omitempty"`
	Text      string       `json:"text,omitempty"`
	Trucks    int          `json:"trucks,omitempty"`
	TMax      float64      `json:"tmax,omitempty"`
	Customers []CustomerIn `json:"customers,omitempty"`
}

// Instance is the stored form of an uploaded problem instance.
type Instance struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Trucks    int          `json:"trucks"`
	TMax      float64      `json:"tmax"`
	Customers []CustomerIn `json:"customers"`
	CreatedAt string       `json:"createdAt,omitempty"`
}

// InstanceOut is the list/read view: the coordinate payload is elided, only
// the node count is reported.
type InstanceOut struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Trucks    int     `json:"trucks"`
	TMax      float64 `json:"tmax"`
	Nodes     int     `json:"nodes"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

// SolveRequest is the body of POST /v1/solve. Zero fields fall back to the
// server's configured solver defaults.
type SolveRequest struct {
	InstanceID   string   `json:"instanceId"`
	Iterations   int      `json:"iterations,omitempty"`
	TimeBudgetMs int      `json:"timeBudgetMs,omitempty"`
	Workers      int      `json:"workers,omitempty"`
	Seed         int64    `json:"seed,omitempty"`
	Alpha        *float64 `json:"alpha,omitempty"` // nil means use the server default
	Trials       int      `json:"trials,omitempty"`
	NoiseLevel   float64  `json:"noiseLevel,omitempty"`
}

// SolutionOut is the serialized solution attached to a finished run.
type SolutionOut struct {
	Routes   [][]int `json:"routes"`
	Reward   float64 `json:"reward"`
	Length   float64 `json:"length"`
	Unrouted []int   `json:"unrouted"`
}

// RunStats summarizes the driver's work on a run.
type RunStats struct {
	Iterations         int     `json:"iterations"`
	Improvements       int     `json:"improvements"`
	Alpha              float64 `json:"alpha"`
	BestReward         float64 `json:"bestReward"`
	BestLength         float64 `json:"bestLength"`
	BestExpectedReward float64 `json:"bestExpectedReward,omitempty"`
	ElapsedMs          int64   `json:"elapsedMs"`
}

// Run is a solver run, from creation through completion.
type Run struct {
	ID          string       `json:"id"`
	InstanceID  string       `json:"instanceId"`
	Status      string       `json:"status"` // pending, running, completed, failed
	Params      SolveRequest `json:"params"`
	Solution    *SolutionOut `json:"solution,omitempty"`
	Robust      *SolutionOut `json:"robust,omitempty"`
	Stats       *RunStats    `json:"stats,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   string       `json:"createdAt,omitempty"`
	CompletedAt string       `json:"completedAt,omitempty"`
}

// EvaluateRequest is the body of POST /v1/evaluate: score the given routes
// against an instance under travel-time noise.
type EvaluateRequest struct {
	InstanceID string  `json:"instanceId"`
	Routes     [][]int `json:"routes"`
	Trials     int     `json:"trials,omitempty"`
	NoiseLevel float64 `json:"noiseLevel,omitempty"`
}

// RouteReportOut mirrors the per-route robustness figures.
type RouteReportOut struct {
	Reward         float64 `json:"reward"`
	Length         float64 `json:"length"`
	OnTimeProb     float64 `json:"onTimeProb"`
	ExpectedReward float64 `json:"expectedReward"`
}

// RobustnessOut is the response of POST /v1/evaluate.
type RobustnessOut struct {
	Trials              int              `json:"trials"`
	DeterministicReward float64          `json:"deterministicReward"`
	ExpectedReward      float64          `json:"expectedReward"`
	RewardStdDev        float64          `json:"rewardStdDev"`
	Routes              []RouteReportOut `json:"routes"`
}

// SubscriptionRequest registers a webhook endpoint for run events.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
