package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Auth ──────────────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Connection ────────────────────────────────────────────────────
	ErrNotConnected     ErrCode = "NOT_CONNECTED"
	ErrAlreadyConnected ErrCode = "ALREADY_CONNECTED"

	// ─── Assessment ────────────────────────────────────────────────────
	ErrAlreadyStarted      ErrCode = "ALREADY_STARTED"
	ErrNotStarted          ErrCode = "NOT_STARTED"
	ErrAssessmentCompleted ErrCode = "ASSESSMENT_COMPLETED"
	ErrNoCurrentQuestion   ErrCode = "NO_CURRENT_QUESTION"
	ErrNotCurrentQuestion  ErrCode = "NOT_CURRENT_QUESTION"
	ErrUnknownOption       ErrCode = "UNKNOWN_OPTION"
	ErrSendFailed          ErrCode = "SEND_FAILED"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrSnapshotNotFound ErrCode = "SNAPSHOT_NOT_FOUND"
	ErrStoreDisabled    ErrCode = "STORE_DISABLED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal          ErrCode = "INTERNAL_ERROR"
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Auth ──────────────────────────────────────────────────────────
	case ErrTokenRequired:
		return "A bearer token is required."
	case ErrTokenInvalid:
		return "The token does not match this session."
	case ErrTokenExpired:
		return "The candidate token has expired."
	case ErrForbidden:
		return "You do not have access to this resource."

	// ─── Connection ────────────────────────────────────────────────────
	case ErrNotConnected:
		return "Not connected to the assessment server."
	case ErrAlreadyConnected:
		return "A connection is already open or being opened."

	// ─── Assessment ────────────────────────────────────────────────────
	case ErrAlreadyStarted:
		return "The assessment has already started."
	case ErrNotStarted:
		return "The assessment has not started yet."
	case ErrAssessmentCompleted:
		return "The assessment is already completed."
	case ErrNoCurrentQuestion:
		return "No question is currently presented."
	case ErrNotCurrentQuestion:
		return "Answers are only accepted for the current question."
	case ErrUnknownOption:
		return "The selected option does not belong to the current question."
	case ErrSendFailed:
		return "The request could not be sent. Please retry."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrSnapshotNotFound:
		return "No stored snapshot for this candidate and test."
	case ErrStoreDisabled:
		return "Snapshot storage is not configured."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	case ErrRateLimitExceeded:
		return "Too many requests. Please slow down."
	default:
		return "An unexpected error occurred."
	}
}
