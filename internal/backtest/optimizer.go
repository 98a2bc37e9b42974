package backtest

import (
	"fmt"
	"math"

	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// SweepRanges defines the parameter grid the optimizer explores. An empty
// slice pins that parameter to the base config value.
type SweepRanges struct {
	MinConfidence       []float64
	RiskPerTradePct     []float64
	TrailingActivationR []float64
}

// DefaultSweepRanges returns the standard grid
func DefaultSweepRanges() SweepRanges {
	return SweepRanges{
		MinConfidence:       []float64{60, 65, 70, 75},
		RiskPerTradePct:     []float64{0.005, 0.01, 0.015},
		TrailingActivationR: []float64{1.0, 1.5, 2.0},
	}
}

// OptimizationResult is the best parameter set found by a sweep
type OptimizationResult struct {
	Config      Config
	Results     *Results
	TotalReturn float64
	JobsRun     int
	JobsFailed  int
}

// Optimizer grid-searches replay parameters over one candle series
type Optimizer struct {
	base    Config
	ranges  SweepRanges
	workers int
}

// NewOptimizer creates an optimizer around a base configuration
func NewOptimizer(base Config, ranges SweepRanges, workers int) *Optimizer {
	return &Optimizer{base: base, ranges: ranges, workers: workers}
}

// Optimize runs the full grid and returns the parameter set with the highest
// total return. Failed cells are counted and skipped.
func (o *Optimizer) Optimize(symbol string, data []types.OHLCV) (*OptimizationResult, error) {
	jobs := o.buildJobs(symbol, data)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("empty parameter grid")
	}

	pool := NewWorkerPool(o.workers, len(jobs))
	pool.Start()
	for _, job := range jobs {
		if err := pool.SubmitJob(job); err != nil {
			return nil, fmt.Errorf("failed to submit job %s: %w", job.ID, err)
		}
	}

	done := make(chan *OptimizationResult, 1)
	go func() {
		best := &OptimizationResult{TotalReturn: math.Inf(-1)}
		for result := range pool.Results() {
			best.JobsRun++
			if result.Error != nil {
				best.JobsFailed++
				continue
			}
			if result.Results.TotalReturn > best.TotalReturn {
				best.Config = result.Config
				best.Results = result.Results
				best.TotalReturn = result.Results.TotalReturn
			}
		}
		done <- best
	}()

	pool.Stop()
	best := <-done

	if best.Results == nil {
		return nil, fmt.Errorf("all %d parameter sets failed", best.JobsRun)
	}
	return best, nil
}

// buildJobs expands the grid into replay jobs
func (o *Optimizer) buildJobs(symbol string, data []types.OHLCV) []Job {
	confidences := orBase(o.ranges.MinConfidence, o.base.MinConfidence)
	risks := orBase(o.ranges.RiskPerTradePct, o.base.Risk.MaxRiskPerTradePct)
	activations := orBase(o.ranges.TrailingActivationR, o.base.TrailingActivationR)

	var jobs []Job
	for _, conf := range confidences {
		for _, riskPct := range risks {
			for _, activation := range activations {
				cfg := o.base
				cfg.MinConfidence = conf
				cfg.Risk.MaxRiskPerTradePct = riskPct
				cfg.TrailingActivationR = activation
				jobs = append(jobs, Job{
					ID:     fmt.Sprintf("conf%.0f_risk%.3f_act%.1f", conf, riskPct, activation),
					Symbol: symbol,
					Config: cfg,
					Data:   data,
				})
			}
		}
	}
	return jobs
}

func orBase(values []float64, base float64) []float64 {
	if len(values) == 0 {
		return []float64{base}
	}
	return values
}
