package model

// ConnectRequest is the request body for opening the assessment connection.
type ConnectRequest struct {
	TestID int `json:"test_id" binding:"required,gt=0"`
}

// StartRequest is the optional request body for starting the assessment.
type StartRequest struct {
	ApplicationID string `json:"application_id" binding:"omitempty,max=128"`
}

// SubmitAnswerRequest is the request body for answering the current question.
// OptionID may be "skipped" to skip the question.
type SubmitAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	OptionID   string `json:"option_id" binding:"required"`
}

// ResetRequest is the optional request body for resetting the session.
type ResetRequest struct {
	PreserveLogs bool `json:"preserve_logs"`
}
