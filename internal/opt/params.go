package opt

import (
	"fmt"
	"math"
	"time"
)

var inf = math.Inf(1)

// Params are the annealing knobs. Zero fields mean "use the default" only
// after WithDefaults; Validate rejects them as they stand.
//
// Seed 0 is not a seed: it asks for one derived from the clock. The seed
// actually used is reported in Metrics.Seed and is never 0, so passing it
// back reproduces the run. Trials is the number of candidates drawn and
// scored per iteration; the cheapest one is the proposal.
type Params struct {
	InitialTemp   float64       `json:"initialTemp" yaml:"initialTemp"`
	CoolingRate   float64       `json:"coolingRate" yaml:"coolingRate"`
	MaxIterations int           `json:"maxIterations" yaml:"maxIterations"`
	MinTemp       float64       `json:"minTemp" yaml:"minTemp"`
	SwapsPerRoute int           `json:"swapsPerRoute" yaml:"swapsPerRoute"`
	Seed          int64         `json:"seed" yaml:"seed"`
	Trials        int           `json:"trials" yaml:"trials"`
	TimeBudget    time.Duration `json:"timeBudget" yaml:"timeBudget"`
	TraceEvery    int           `json:"traceEvery" yaml:"traceEvery"`

	// Observer, if set, sees every recorded trace point from inside the loop.
	Observer func(TracePoint) `json:"-" yaml:"-"`
}

func DefaultParams() Params {
	return Params{
		InitialTemp:   100,
		CoolingRate:   0.95,
		MaxIterations: 1000,
		MinTemp:       1e-3,
		SwapsPerRoute: 1,
		Trials:        1,
		TraceEvery:    10,
	}
}

// WithDefaults fills every zero-valued knob from DefaultParams.
// Seed and TimeBudget keep zero as a meaningful value.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.InitialTemp == 0 {
		p.InitialTemp = d.InitialTemp
	}
	if p.CoolingRate == 0 {
		p.CoolingRate = d.CoolingRate
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.MinTemp == 0 {
		p.MinTemp = d.MinTemp
	}
	if p.SwapsPerRoute == 0 {
		p.SwapsPerRoute = d.SwapsPerRoute
	}
	if p.Trials == 0 {
		p.Trials = d.Trials
	}
	if p.TraceEvery == 0 {
		p.TraceEvery = d.TraceEvery
	}
	return p
}

func (p Params) Validate() error {
	switch {
	case !(p.InitialTemp > 0) || math.IsInf(p.InitialTemp, 0):
		return fmt.Errorf("%w: initial temperature must be positive, got %v", ErrInvalidConfiguration, p.InitialTemp)
	case !(p.CoolingRate > 0 && p.CoolingRate < 1):
		return fmt.Errorf("%w: cooling rate must be in (0,1), got %v", ErrInvalidConfiguration, p.CoolingRate)
	case p.MaxIterations < 0:
		return fmt.Errorf("%w: max iterations must be >= 0, got %d", ErrInvalidConfiguration, p.MaxIterations)
	case !(p.MinTemp > 0):
		return fmt.Errorf("%w: temperature floor must be positive, got %v", ErrInvalidConfiguration, p.MinTemp)
	case p.SwapsPerRoute < 1:
		return fmt.Errorf("%w: swaps per route must be >= 1, got %d", ErrInvalidConfiguration, p.SwapsPerRoute)
	case p.Trials < 1:
		return fmt.Errorf("%w: trials must be >= 1, got %d", ErrInvalidConfiguration, p.Trials)
	case p.TimeBudget < 0:
		return fmt.Errorf("%w: time budget must be >= 0, got %v", ErrInvalidConfiguration, p.TimeBudget)
	case p.TraceEvery < 0:
		return fmt.Errorf("%w: trace interval must be >= 0, got %d", ErrInvalidConfiguration, p.TraceEvery)
	}
	return nil
}
