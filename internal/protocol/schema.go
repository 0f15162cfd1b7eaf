package protocol

import "github.com/stemsi/assessment-client/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStartAssessment    Action = "start_assessment"
	ActionSubmitAnswer       Action = "submit_answer"
	ActionCompleteAssessment Action = "complete_assessment"
	ActionResumeAssessment   Action = "resume_assessment"
	ActionPing               Action = "ping"
	ActionGetTestInfo        Action = "get_test_info"
)

// Request is the outbound envelope written to the transport.
type Request struct {
	Type Action      `json:"type"`
	Data interface{} `json:"data"`
}

// StartAssessmentRequest asks the backend to open a new assessment thread.
type StartAssessmentRequest struct {
	TestID        int    `json:"test_id"`
	ApplicationID string `json:"application_id,omitempty"`
}

// SubmitAnswerRequest submits the selected option for one question.
type SubmitAnswerRequest struct {
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
	ThreadID       string `json:"thread_id,omitempty"`
}

// CompleteAssessmentRequest asks the backend to finish and grade the attempt.
type CompleteAssessmentRequest struct {
	AssessmentID string `json:"assessment_id"`
	ThreadID     string `json:"thread_id"`
}

// ResumeAssessmentRequest asks the backend for a recovered snapshot after a reconnect.
type ResumeAssessmentRequest struct {
	TestID       int    `json:"test_id"`
	AssessmentID string `json:"assessment_id"`
	ThreadID     string `json:"thread_id"`
}

// TestInfoRequest asks the backend for test metadata.
type TestInfoRequest struct {
	TestID int `json:"test_id"`
}

// PingRequest keeps the connection warm.
type PingRequest struct{}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventConnectionEstablished Event = "connection_established"
	EventAssessmentStarted     Event = "assessment_started"
	EventQuestion              Event = "question"
	EventAnswerFeedback        Event = "answer_feedback"
	EventProgressUpdate        Event = "progress_update"
	EventAssessmentRecovered   Event = "assessment_recovered"
	EventAssessmentCompleted   Event = "assessment_completed"
	EventError                 Event = "error"
	EventPong                  Event = "pong"
	EventTestInfo              Event = "test_info"
)

// ConnectionEstablished acknowledges the transport handshake.
type ConnectionEstablished struct {
	ConnectionID string `json:"connection_id" validate:"required"`
	UserID       int    `json:"user_id"`
	TestID       int    `json:"test_id" validate:"gt=0"`
}

// AssessmentStarted confirms a start_assessment request.
type AssessmentStarted struct {
	AssessmentID string `json:"assessment_id" validate:"required"`
	ThreadID     string `json:"thread_id" validate:"required"`
	TestID       int    `json:"test_id"`
}

// OptionBody is one option of a delivered question.
type OptionBody struct {
	OptionID string `json:"option_id" validate:"required"`
	Option   string `json:"option"`
}

// QuestionBody is the question content without its identifier.
type QuestionBody struct {
	Text       string       `json:"text" validate:"required"`
	Options    []OptionBody `json:"options" validate:"dive"`
	Difficulty string       `json:"difficulty"`
	Skill      string       `json:"skill"`
	TimeLimit  int          `json:"time_limit" validate:"gte=0"`
}

// QuestionDelivered presents the next question.
type QuestionDelivered struct {
	QuestionID string       `json:"question_id" validate:"required"`
	ThreadID   string       `json:"thread_id"`
	Question   QuestionBody `json:"question"`
}

// ToModel flattens the delivery into a model.Question.
func (q *QuestionDelivered) ToModel() model.Question {
	opts := make([]model.QuestionOption, 0, len(q.Question.Options))
	for _, o := range q.Question.Options {
		opts = append(opts, model.QuestionOption{OptionID: o.OptionID, Option: o.Option})
	}
	return model.Question{
		QuestionID: q.QuestionID,
		Text:       q.Question.Text,
		Options:    opts,
		Difficulty: q.Question.Difficulty,
		Skill:      q.Question.Skill,
		TimeLimit:  q.Question.TimeLimit,
	}
}

// ProgressBody is the server-authoritative progress counter.
type ProgressBody struct {
	AnsweredQuestions int `json:"answered_questions" validate:"gte=0"`
	TotalQuestions    int `json:"total_questions" validate:"gte=0"`
}

// ToModel converts the body into a model.Progress.
func (p ProgressBody) ToModel() model.Progress {
	return model.Progress{AnsweredQuestions: p.AnsweredQuestions, TotalQuestions: p.TotalQuestions}
}

// FeedbackBody carries the grading of one answer.
type FeedbackBody struct {
	Correct        bool   `json:"correct"`
	SelectedOption string `json:"selected_option"`
	CorrectAnswer  string `json:"correct_answer"`
	Message        string `json:"message"`
}

// AnswerFeedback acknowledges a submit_answer request.
type AnswerFeedback struct {
	QuestionID string       `json:"question_id" validate:"required"`
	Feedback   FeedbackBody `json:"feedback"`
	Progress   ProgressBody `json:"progress"`
	ThreadID   string       `json:"thread_id"`
}

// AssessmentRecovered is the server snapshot sent after a resume_assessment request.
type AssessmentRecovered struct {
	AssessmentID string       `json:"assessment_id" validate:"required"`
	ThreadID     string       `json:"thread_id" validate:"required"`
	Progress     ProgressBody `json:"progress"`
}

// AssessmentCompleted confirms a complete_assessment request with the final result.
type AssessmentCompleted struct {
	FinalScore     float64 `json:"final_score"`
	CorrectAnswers int     `json:"correct_answers" validate:"gte=0"`
	TotalQuestions int     `json:"total_questions" validate:"gte=0"`
	AssessmentID   string  `json:"assessment_id" validate:"required"`
	ThreadID       string  `json:"thread_id" validate:"required"`
}

// ErrorEvent reports a server-side rejection or failure.
type ErrorEvent struct {
	Message     string `json:"message" validate:"required"`
	Code        string `json:"code"`
	Details     string `json:"details"`
	Recoverable bool   `json:"recoverable"`
}

// Pong answers a ping.
type Pong struct{}

// TestInfo is free-form test metadata; it is logged, never reduced.
type TestInfo map[string]interface{}
