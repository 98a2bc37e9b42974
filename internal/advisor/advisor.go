package advisor

import (
	"context"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/errors"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/logger"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/signal"
)

// Advice is an advisory opinion on a candidate trade. It can veto the trade
// or scale its confidence, and is never a substitute for the risk checks.
type Advice struct {
	Veto            bool    `json:"veto"`
	ConfidenceDelta float64 `json:"confidence_delta"` // Added to signal confidence, may be negative
	Reason          string  `json:"reason"`
	Unavailable     bool    `json:"unavailable"` // True when the advisor could not be reached
}

// Advisor reviews a candidate signal before execution
type Advisor interface {
	Review(ctx context.Context, sig *signal.Signal) (*Advice, error)
}

// FailOpenAdvisor wraps an Advisor with a timeout and fail-open semantics:
// when the inner advisor errors or times out, the trade proceeds unvetoed
// and the advice is flagged unavailable for audit.
type FailOpenAdvisor struct {
	inner   Advisor
	timeout time.Duration
	log     *logger.Logger
}

// NewFailOpen wraps an advisor; a nil inner advisor always passes
func NewFailOpen(inner Advisor, timeout time.Duration, log *logger.Logger) *FailOpenAdvisor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &FailOpenAdvisor{inner: inner, timeout: timeout, log: log}
}

// Review consults the inner advisor; an unreachable advisor never blocks a
// trade
func (f *FailOpenAdvisor) Review(ctx context.Context, sig *signal.Signal) (*Advice, error) {
	if f.inner == nil {
		return &Advice{Reason: "no advisor configured"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	type result struct {
		advice *Advice
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		advice, err := f.inner.Review(ctx, sig)
		ch <- result{advice, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			f.log.LogError("advisory review failed, proceeding without it",
				errors.NewAdvisoryUnavailable("advisor", res.err))
			return &Advice{Unavailable: true, Reason: "advisor error: " + res.err.Error()}, nil
		}
		if res.advice == nil {
			return &Advice{Reason: "empty advice"}, nil
		}
		return res.advice, nil
	case <-ctx.Done():
		f.log.LogWarning("Advisor", "review timed out after %s for %s, proceeding without it", f.timeout, sig.Symbol)
		return &Advice{Unavailable: true, Reason: "advisor timeout"}, nil
	}
}

// RuleAdvisor is a local advisor built from static per-symbol rules. It
// stands in for an external advisory service in paper and test runs.
type RuleAdvisor struct {
	blocked map[string]string // symbol -> reason
}

// NewRuleAdvisor creates an advisor that vetoes the given symbols
func NewRuleAdvisor(blockedSymbols map[string]string) *RuleAdvisor {
	if blockedSymbols == nil {
		blockedSymbols = make(map[string]string)
	}
	return &RuleAdvisor{blocked: blockedSymbols}
}

// Review vetoes blocked symbols and passes everything else
func (r *RuleAdvisor) Review(ctx context.Context, sig *signal.Signal) (*Advice, error) {
	if reason, ok := r.blocked[sig.Symbol]; ok {
		return &Advice{Veto: true, Reason: reason}, nil
	}
	return &Advice{Reason: "no objection"}, nil
}
