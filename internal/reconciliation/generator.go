package reconciliation

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Observer receives strategy and outcome events for metrics.
type Observer interface {
	StrategyFailed(source string)
	StrategyDuration(source string, d time.Duration)
	Outcome(outcome string)
}

type nopObserver struct{}

func (nopObserver) StrategyFailed(string)                  {}
func (nopObserver) StrategyDuration(string, time.Duration) {}
func (nopObserver) Outcome(string)                         {}

// Generator runs the strategies in registry order and merges their output.
type Generator struct {
	strategies []Strategy
	threshold  float64
	logger     *slog.Logger
	observer   Observer
}

// NewGenerator registers strategies in the order given; that order breaks
// confidence ties.
func NewGenerator(threshold float64, logger *slog.Logger, observer Observer, strategies ...Strategy) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Generator{strategies: strategies, threshold: threshold, logger: logger, observer: observer}
}

type ranked struct {
	MatchCandidate
	seq int
}

// Generate returns candidates deduplicated by target, highest confidence
// first. A failing strategy is logged and skipped. External strategies are
// not consulted once a local one reaches the threshold.
func (g *Generator) Generate(ctx context.Context, req Request) ([]MatchCandidate, error) {
	best := make(map[string]ranked)
	confident := false
	seq := 0
	for _, strategy := range g.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strategy.External() && confident {
			continue
		}
		started := time.Now()
		found, err := strategy.Propose(ctx, req)
		g.observer.StrategyDuration(string(strategy.Source()), time.Since(started))
		if err != nil {
			g.observer.StrategyFailed(string(strategy.Source()))
			g.logger.Warn("strategy failed",
				slog.String("strategy", string(strategy.Source())),
				slog.Int64("transaction_id", req.Transaction.ID),
				slog.Any("error", err))
			continue
		}
		for _, c := range found {
			if c.Confidence < 0 {
				c.Confidence = 0
			}
			if c.Confidence > 1 {
				c.Confidence = 1
			}
			if c.Source == "" {
				c.Source = strategy.Source()
			}
			if c.Confidence >= g.threshold {
				confident = true
			}
			seq++
			k := c.key()
			if prev, ok := best[k]; ok && prev.Confidence >= c.Confidence {
				continue
			}
			best[k] = ranked{MatchCandidate: c, seq: seq}
		}
	}

	list := make([]ranked, 0, len(best))
	for _, r := range best {
		list = append(list, r)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Confidence != list[j].Confidence {
			return list[i].Confidence > list[j].Confidence
		}
		return list[i].seq < list[j].seq
	})
	out := make([]MatchCandidate, len(list))
	for i, r := range list {
		out[i] = r.MatchCandidate
	}
	return out, nil
}

// Decide picks the candidate to auto-post. It returns false when nothing
// reaches the threshold or two different targets tie at the top.
func Decide(candidates []MatchCandidate, threshold float64) (MatchCandidate, bool) {
	if len(candidates) == 0 || candidates[0].Confidence < threshold {
		return MatchCandidate{}, false
	}
	if len(candidates) > 1 && candidates[1].Confidence == candidates[0].Confidence {
		return MatchCandidate{}, false
	}
	return candidates[0], true
}
