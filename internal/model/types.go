package model

// Wire types for the planning API. Times that may be infinite are pointers:
// JSON has no infinity, so they encode as null.

type EdgeIn struct {
	From     string  `json:"from" yaml:"from"`
	To       string  `json:"to" yaml:"to"`
	Time     float64 `json:"time" yaml:"time"`
	Capacity int     `json:"capacity" yaml:"capacity"`
}

type TimeWindow struct {
	Min float64  `json:"min" yaml:"min"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"` // nil = unbounded
}

// NodeIn places a node on the map; only heuristic path searches read it.
type NodeIn struct {
	ID string  `json:"id" yaml:"id"`
	X  float64 `json:"x" yaml:"x"`
	Y  float64 `json:"y" yaml:"y"`
}

type VehicleIn struct {
	ID         string      `json:"id,omitempty" yaml:"id,omitempty"`
	Start      string      `json:"start" yaml:"start"`
	End        string      `json:"end" yaml:"end"`
	TimeWindow *TimeWindow `json:"timeWindow,omitempty" yaml:"timeWindow,omitempty"`
}

// ParamsIn overrides optimizer defaults; zero fields keep the default.
type ParamsIn struct {
	InitialTemp   float64 `json:"initialTemp,omitempty" yaml:"initialTemp,omitempty"`
	CoolingRate   float64 `json:"coolingRate,omitempty" yaml:"coolingRate,omitempty"`
	MaxIterations int     `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	MinTemp       float64 `json:"minTemp,omitempty" yaml:"minTemp,omitempty"`
	SwapsPerRoute int     `json:"swapsPerRoute,omitempty" yaml:"swapsPerRoute,omitempty"`
	Seed          int64   `json:"seed,omitempty" yaml:"seed,omitempty"`     // 0 = from the clock; MetricsOut.Seed has the one used
	Trials        int     `json:"trials,omitempty" yaml:"trials,omitempty"` // candidates scored per iteration
	TimeBudgetMs  int     `json:"timeBudgetMs,omitempty" yaml:"timeBudgetMs,omitempty"`
	TraceEvery    int     `json:"traceEvery,omitempty" yaml:"traceEvery,omitempty"`
}

type PlanRequest struct {
	TenantID      string      `json:"tenantId,omitempty"`
	Name          string      `json:"name,omitempty"`
	Edges         []EdgeIn    `json:"edges"`
	Vehicles      []VehicleIn `json:"vehicles"`
	Params        *ParamsIn   `json:"params,omitempty"`
	InitialRoutes [][]string  `json:"initialRoutes,omitempty"`
	CallbackURL   string      `json:"callbackUrl,omitempty"`
	Async         bool        `json:"async,omitempty"`
}

type RouteOut struct {
	VehicleID string   `json:"vehicleId,omitempty"`
	Nodes     []string `json:"nodes"`
	Time      *float64 `json:"time"`
}

type Assignment struct {
	Routes    []RouteOut `json:"routes"`
	TotalTime *float64   `json:"totalTime"`
}

type Baseline struct {
	Assignment
	Unreachable []int `json:"unreachable,omitempty"`
}

type TracePoint struct {
	Iteration   int      `json:"iteration"`
	Temp        float64  `json:"temp"`
	CurrentCost *float64 `json:"currentCost"`
	BestCost    *float64 `json:"bestCost"`
}

type MetricsOut struct {
	Seed          int64        `json:"seed"`
	Iterations    int          `json:"iterations"`
	Accepted      int          `json:"accepted"`
	AcceptedWorse int          `json:"acceptedWorse"`
	Improvements  int          `json:"improvements"`
	Rejected      int          `json:"rejected"`
	Infeasible    int          `json:"infeasible"`
	SeedCost      *float64     `json:"seedCost"`
	BestCost      *float64     `json:"bestCost"`
	FinalCost     *float64     `json:"finalCost"`
	FinalTemp     float64      `json:"finalTemp"`
	StopReason    string       `json:"stopReason,omitempty"`
	DurationMs    int64        `json:"durationMs"`
	Trace         []TracePoint `json:"trace,omitempty"`
}

// Plan statuses. pending/running only appear on async plans.
const (
	PlanPending     = "pending"
	PlanRunning     = "running"
	PlanOptimized   = "optimized"
	PlanUnreachable = "unreachable"
	PlanInfeasible  = "infeasible"
	PlanFailed      = "failed"
)

type PlanOut struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenantId"`
	Name           string       `json:"name,omitempty"`
	Status         string       `json:"status"`
	CreatedAt      string       `json:"createdAt"`
	Baseline       *Baseline    `json:"baseline,omitempty"`
	Optimized      *Assignment  `json:"optimized,omitempty"`
	ImprovementPct float64      `json:"improvementPct"`
	Metrics        *MetricsOut  `json:"metrics,omitempty"`
	Error          string       `json:"error,omitempty"`
	Request        *PlanRequest `json:"request,omitempty"`
}
