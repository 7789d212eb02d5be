package apperrors

// Definition is a business error with a stable code. Services wrap
// these with fmt.Errorf("...: %w", ...) and handlers match them with
// errors.Is to pick a status code.
type Definition struct {
	Code    string
	Message string
}

func (d Definition) Error() string {
	return d.Message
}

var (
	ErrUnauthorized        = Definition{Code: "UNAUTHORIZED", Message: "actor does not own this enrollment"}
	ErrNotFound            = Definition{Code: "NOT_FOUND", Message: "record not found"}
	ErrTaskNotFound        = Definition{Code: "TASK_NOT_FOUND", Message: "task does not belong to this challenge"}
	ErrDuplicateCheckIn    = Definition{Code: "DUPLICATE_CHECK_IN", Message: "already checked in for this task today"}
	ErrEnrollmentNotActive = Definition{Code: "ENROLLMENT_NOT_ACTIVE", Message: "enrollment is not active"}
	ErrAlreadyEnrolled     = Definition{Code: "ALREADY_ENROLLED", Message: "an active enrollment already exists for this challenge"}
	ErrEditWindowExpired   = Definition{Code: "EDIT_WINDOW_EXPIRED", Message: "check-in note can no longer be edited"}
)
