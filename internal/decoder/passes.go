package decoder

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// PassFunc runs one hint pass. index is 0 for hints A, 1 for hints B.
type PassFunc func(ctx context.Context, index int, hints Hints, sink Sink) error

// RunPasses runs the A and B hint passes in order, each under its own budget.
// A pass that runs out of budget is cut short, not failed.
func RunPasses(ctx context.Context, req Request, sink Sink, pass PassFunc) error {
	passes := []struct {
		hints  Hints
		budget time.Duration
	}{
		{req.Params.HintsA, req.Params.BudgetA},
		{req.Params.HintsB, req.Params.BudgetB},
	}

	for i, p := range passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.budget <= 0 {
			continue
		}

		passCtx, cancel := context.WithTimeout(ctx, p.budget)
		start := time.Now()
		err := pass(passCtx, i, p.hints, sink)
		cancel()

		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			slog.Debug("decode pass hit budget", "pass", i, "budget", p.budget)
		} else {
			slog.Debug("decode pass done", "pass", i, "took", time.Since(start).Round(time.Millisecond))
		}
	}
	return nil
}
