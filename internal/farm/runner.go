package farm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/caraka15/taiko-bot/internal/clock"
	"github.com/caraka15/taiko-bot/internal/metrics"
	"github.com/caraka15/taiko-bot/internal/report"
	"github.com/caraka15/taiko-bot/internal/storage"
)

const reportTimeout = 30 * time.Second

type RateSource interface {
	NativeUSD(ctx context.Context) (float64, error)
}

type Runner struct {
	Controller Controller
	Iterations int
	// Interval is waited between iterations, not after the last one.
	Interval time.Duration

	Clock    clock.Clock
	Repo     storage.Repository
	Rates    RateSource
	Notifier report.Notifier
	Location *time.Location
}

// Run executes one scheduled run and always attempts to deliver the report,
// even when an iteration failed or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, wallets []Wallet) report.Summary {
	clk := r.Clock
	if clk == nil {
		clk = clock.Real()
	}
	mode := r.Controller.Mode()
	run := NewRun(mode, clk.Now())
	log.Printf("[farm] run %s started: mode=%s iterations=%d wallets=%d", run.ID, mode, r.Iterations, len(wallets))

	var runErr error
	for i := 1; i <= r.Iterations; i++ {
		if err := r.Controller.Iterate(ctx, run, wallets, i); err != nil {
			runErr = fmt.Errorf("iteration %d: %w", i, err)
			log.Printf("[farm] run %s stopped: %v", run.ID, runErr)
			break
		}
		run.CompletedIterations++
		metrics.IterationsCompleted.WithLabelValues(string(mode)).Inc()

		if i < r.Iterations {
			log.Printf("[farm] waiting %s before next iteration", r.Interval)
			if err := clk.Sleep(ctx, r.Interval); err != nil {
				runErr = err
				break
			}
		}
	}

	rctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()
	}

	finished := clk.Now()
	if r.Location != nil {
		finished = finished.In(r.Location)
	}
	summary := report.Summary{
		RunID:               run.ID.String(),
		Mode:                string(mode),
		Iterations:          r.Iterations,
		CompletedIterations: run.CompletedIterations,
		Wallets:             len(wallets),
		StartedAt:           run.StartedAt,
		FinishedAt:          finished,
		Fees:                run.Fees.Snapshot(),
		Points:              run.Points.Snapshot(),
		Err:                 runErr,
	}

	if r.Rates != nil {
		if usd, err := r.Rates.NativeUSD(rctx); err != nil {
			log.Printf("[farm] usd rate unavailable: %v", err)
		} else {
			summary.USDRate = &usd
		}
	}

	status := runStatus(summary)
	metrics.Runs.WithLabelValues(string(mode), string(status)).Inc()
	r.saveRun(rctx, run, summary, status)

	if r.Notifier != nil {
		if err := r.Notifier.Notify(rctx, report.Format(summary)); err != nil {
			log.Printf("[farm] report delivery failed: %v", err)
		}
	}

	log.Printf("[farm] run %s finished: %d/%d iterations, status=%s",
		run.ID, run.CompletedIterations, r.Iterations, status)
	return summary
}

func runStatus(s report.Summary) storage.RunStatus {
	switch {
	case s.Err == nil:
		return storage.RunOK
	case s.CompletedIterations == 0:
		return storage.RunFailed
	default:
		return storage.RunPartial
	}
}

func (r *Runner) saveRun(ctx context.Context, run *Run, s report.Summary, status storage.RunStatus) {
	if r.Repo == nil {
		return
	}
	rec := storage.RunRecord{
		ID:                  s.RunID,
		Mode:                s.Mode,
		StartedAt:           s.StartedAt,
		FinishedAt:          s.FinishedAt,
		Iterations:          s.Iterations,
		CompletedIterations: s.CompletedIterations,
		Wallets:             s.Wallets,
		TotalFeeWei:         run.Fees.Total().ToBig().String(),
		Status:              status,
	}
	if s.Err != nil {
		msg := s.Err.Error()
		rec.Error = &msg
	}
	if err := r.Repo.SaveRun(ctx, rec); err != nil {
		log.Printf("[farm] db save run error: %v", err)
	}
}
