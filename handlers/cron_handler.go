package handlers

import (
	"context"
	"net/http"
	"time"

	"momentumAPI/services"
)

// CronHandler exposes the three scheduled jobs as HTTP triggers. The
// jobs themselves are idempotent, so an external scheduler with
// at-least-once semantics can hit these endpoints freely.
type CronHandler struct {
	reconcilerService *services.ReconcilerService
	retentionService  *services.RetentionService
}

func NewCronHandler(reconcilerService *services.ReconcilerService, retentionService *services.RetentionService) *CronHandler {
	return &CronHandler{
		reconcilerService: reconcilerService,
		retentionService:  retentionService,
	}
}

// POST /api/v1/cron/daily-reconciliation
func (h *CronHandler) RunDailyReconciliation(w http.ResponseWriter, r *http.Request) {
	// The job can run past the server's write timeout on large backlogs.
	http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	summary, err := h.reconcilerService.ReconcileDaily(ctx, time.Now())
	if err != nil {
		if summary != nil {
			// Partial failure: report what was done so far.
			respondWithJSON(w, http.StatusInternalServerError, summary)
			return
		}
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// POST /api/v1/cron/grace-reset
func (h *CronHandler) RunGraceReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	summary, err := h.reconcilerService.ResetGraceBudgets(ctx, time.Now())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// POST /api/v1/cron/retention-sweep
func (h *CronHandler) RunRetentionSweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	summary := h.retentionService.Sweep(ctx, time.Now())
	status := http.StatusOK
	if summary.Errors > 0 {
		status = http.StatusInternalServerError
	}
	respondWithJSON(w, status, summary)
}
