package model

import "time"

// ConnectionStatus enumerates the states of the live assessment connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
	StatusReconnecting ConnectionStatus = "reconnecting"
)

// Active reports whether the status holds or is acquiring a transport.
func (s ConnectionStatus) Active() bool {
	return s == StatusConnecting || s == StatusConnected || s == StatusReconnecting
}

// SkippedOption is the option id a candidate submits to skip a question.
const SkippedOption = "skipped"

// QuestionOption is one selectable answer of a multiple-choice question.
type QuestionOption struct {
	OptionID string `json:"option_id"`
	Option   string `json:"option"`
}

// Question is a question delivered by the assessment backend.
type Question struct {
	QuestionID string           `json:"question_id"`
	Text       string           `json:"text"`
	Options    []QuestionOption `json:"options"`
	Difficulty string           `json:"difficulty"`
	Skill      string           `json:"skill"`
	TimeLimit  int              `json:"time_limit"`
}

// Option returns the option with the given id.
func (q *Question) Option(optionID string) (QuestionOption, bool) {
	for _, o := range q.Options {
		if o.OptionID == optionID {
			return o, true
		}
	}
	return QuestionOption{}, false
}

// QuestionResponse is the candidate's answer to one question.
// IsCorrect and CorrectAnswer stay empty until the backend sends feedback.
type QuestionResponse struct {
	SelectedOption string    `json:"selected_option"`
	OptionText     string    `json:"option_text"`
	Timestamp      time.Time `json:"timestamp"`
	IsCorrect      *bool     `json:"is_correct,omitempty"`
	CorrectAnswer  string    `json:"correct_answer,omitempty"`
	Confirmed      bool      `json:"confirmed"`
}

// Progress is the server-authoritative answered/total counter pair.
type Progress struct {
	AnsweredQuestions int `json:"answered_questions"`
	TotalQuestions    int `json:"total_questions"`
}

// Percent returns the completed share in the range [0, 100].
func (p Progress) Percent() float64 {
	if p.TotalQuestions <= 0 {
		return 0
	}
	return float64(p.AnsweredQuestions) / float64(p.TotalQuestions) * 100
}

// ErrorType classifies entries of the diagnostics log.
type ErrorType string

const (
	ErrorTypeTransport ErrorType = "transport_error"
	ErrorTypeProtocol  ErrorType = "protocol_error"
	ErrorTypeServer    ErrorType = "server_error"
	ErrorTypeClient    ErrorType = "client_error"
)

// ErrorLog is one entry of the bounded diagnostics log.
type ErrorLog struct {
	ID          string    `json:"id"`
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Code        string    `json:"code,omitempty"`
	Details     string    `json:"details,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

// Snapshot is the full projection of one assessment attempt exposed to
// presentation layers and persisted stores.
type Snapshot struct {
	AssessmentID  string `json:"assessment_id,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
	TestID        int    `json:"test_id,omitempty"`
	ConnectionID  string `json:"connection_id,omitempty"`
	ThreadID      string `json:"thread_id,omitempty"`
	UserID        int    `json:"user_id,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	ConnectionStatus ConnectionStatus `json:"connection_status"`

	AssessmentStarted   bool `json:"assessment_started"`
	AssessmentCompleted bool `json:"assessment_completed"`

	CurrentQuestion *Question                   `json:"current_question,omitempty"`
	PastQuestions   []Question                  `json:"past_questions"`
	Responses       map[string]QuestionResponse `json:"responses"`

	Progress *Progress `json:"progress,omitempty"`

	FinalScore     *float64 `json:"final_score,omitempty"`
	CorrectAnswers *int     `json:"correct_answers,omitempty"`

	CurrentError *string    `json:"current_error,omitempty"`
	ErrorLogs    []ErrorLog `json:"error_logs"`

	ReconnectAttempts    int        `json:"reconnect_attempts"`
	LastMessageTimestamp *time.Time `json:"last_message_timestamp,omitempty"`
}

// PastQuestionIDs lists archived question ids in arrival order.
func (s Snapshot) PastQuestionIDs() []string {
	ids := make([]string, 0, len(s.PastQuestions))
	for _, q := range s.PastQuestions {
		ids = append(ids, q.QuestionID)
	}
	return ids
}
