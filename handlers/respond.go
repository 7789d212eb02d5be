package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"momentumAPI/internal/apperrors"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal JSON response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps the engine's error taxonomy onto HTTP
// status codes.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		respondWithError(w, http.StatusForbidden, apperrors.ErrUnauthorized.Message)
	case errors.Is(err, apperrors.ErrNotFound):
		respondWithError(w, http.StatusNotFound, apperrors.ErrNotFound.Message)
	case errors.Is(err, apperrors.ErrTaskNotFound):
		respondWithError(w, http.StatusNotFound, apperrors.ErrTaskNotFound.Message)
	case errors.Is(err, apperrors.ErrDuplicateCheckIn):
		respondWithError(w, http.StatusConflict, apperrors.ErrDuplicateCheckIn.Message)
	case errors.Is(err, apperrors.ErrAlreadyEnrolled):
		respondWithError(w, http.StatusConflict, apperrors.ErrAlreadyEnrolled.Message)
	case errors.Is(err, apperrors.ErrEnrollmentNotActive):
		respondWithError(w, http.StatusUnprocessableEntity, apperrors.ErrEnrollmentNotActive.Message)
	case errors.Is(err, apperrors.ErrEditWindowExpired):
		respondWithError(w, http.StatusUnprocessableEntity, apperrors.ErrEditWindowExpired.Message)
	default:
		log.Printf("Unhandled service error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
