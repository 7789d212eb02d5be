package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"momentumAPI/internal/types/checkin"
	"momentumAPI/middleware"
	"momentumAPI/services"
)

type CheckInHandler struct {
	checkInService   *services.CheckInService
	challengeService *services.ChallengeService
}

func NewCheckInHandler(checkInService *services.CheckInService, challengeService *services.ChallengeService) *CheckInHandler {
	return &CheckInHandler{
		checkInService:   checkInService,
		challengeService: challengeService,
	}
}

// POST /api/v1/checkins
func (h *CheckInHandler) RecordCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req checkin.RecordCheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	enrollmentID, err := uuid.Parse(req.EnrollmentID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid enrollment ID")
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid task ID")
		return
	}

	userID, err := h.challengeService.GetUserIDFromClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}

	ci, err := h.checkInService.RecordCheckIn(ctx, enrollmentID, taskID, userID, req.Note, req.PhotoURL)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ci)
}

// PUT /api/v1/checkins/{id}/note
func (h *CheckInHandler) EditNote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	vars := mux.Vars(r)
	checkInID, err := uuid.Parse(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid check-in ID")
		return
	}

	var req checkin.EditNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, err := h.challengeService.GetUserIDFromClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "User not found")
		return
	}

	ci, err := h.checkInService.EditCheckInNote(ctx, checkInID, userID, req.Note)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ci)
}
