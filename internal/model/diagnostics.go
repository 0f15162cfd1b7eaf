package model

import "time"

// Diagnostics is the support record kept for a finished or failed attempt.
type Diagnostics struct {
	UserID         int              `json:"user_id"`
	TestID         int              `json:"test_id"`
	AssessmentID   string           `json:"assessment_id"`
	ThreadID       string           `json:"thread_id"`
	Status         ConnectionStatus `json:"status"`
	Completed      bool             `json:"completed"`
	FinalScore     *float64         `json:"final_score,omitempty"`
	CorrectAnswers *int             `json:"correct_answers,omitempty"`
	Answered       int              `json:"answered"`
	Total          int              `json:"total"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	ErrorLogs      []ErrorLog       `json:"error_logs"`
}

// Terminal reports whether the snapshot describes an attempt that will not
// progress without a manual restart.
func (s Snapshot) Terminal() bool {
	return s.AssessmentCompleted || s.ConnectionStatus == StatusError
}

// NewDiagnostics extracts the support record from a snapshot.
func NewDiagnostics(s Snapshot) Diagnostics {
	d := Diagnostics{
		UserID:         s.UserID,
		TestID:         s.TestID,
		AssessmentID:   s.AssessmentID,
		ThreadID:       s.ThreadID,
		Status:         s.ConnectionStatus,
		Completed:      s.AssessmentCompleted,
		FinalScore:     s.FinalScore,
		CorrectAnswers: s.CorrectAnswers,
		StartedAt:      s.StartTime,
		FinishedAt:     s.EndTime,
		ErrorLogs:      s.ErrorLogs,
	}
	if s.Progress != nil {
		d.Answered = s.Progress.AnsweredQuestions
		d.Total = s.Progress.TotalQuestions
	}
	if d.ErrorLogs == nil {
		d.ErrorLogs = []ErrorLog{}
	}
	return d
}
