package workers

import (
	"context"
	"log"
	"time"

	"momentumAPI/services"
)

// Start runs the scheduled jobs on in-process tickers. This is the
// fallback trigger for deployments without an external scheduler; the
// cron HTTP endpoints call the same idempotent jobs, so running both
// at once is safe.
func Start(ctx context.Context, reconciler *services.ReconcilerService, retention *services.RetentionService) {
	go runDailyReconciliation(ctx, reconciler)
	go runHourlyRetention(ctx, retention)
}

// runDailyReconciliation fires shortly after each local midnight so
// "yesterday" is complete, and retries within the hour on failure.
func runDailyReconciliation(ctx context.Context, reconciler *services.ReconcilerService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	var lastRun string
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			day := now.Format("2006-01-02")
			if day == lastRun {
				continue
			}

			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
			summary, err := reconciler.ReconcileDaily(jobCtx, now)
			if err != nil {
				log.Printf("Worker: daily reconciliation failed, will retry next tick: %v", err)
				cancel()
				continue
			}
			if summary.Errors > 0 {
				log.Printf("Worker: daily reconciliation finished with %d errors, will retry next tick", summary.Errors)
				cancel()
				continue
			}

			if _, err := reconciler.ResetGraceBudgets(jobCtx, now); err != nil {
				log.Printf("Worker: grace budget reset failed: %v", err)
			}
			cancel()
			lastRun = day
		}
	}
}

func runHourlyRetention(ctx context.Context, retention *services.RetentionService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			jobCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			retention.Sweep(jobCtx, now)
			cancel()
		}
	}
}
