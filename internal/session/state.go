// Package session holds the assessment session aggregate and the reducer
// functions that move it between states. It performs no I/O; the caller
// supplies the clock and serializes access.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/assessment-client/internal/model"
)

// MaxErrorLogs bounds the diagnostics log. Oldest entries are evicted first.
const MaxErrorLogs = 50

var (
	ErrSessionCompleted   = errors.New("assessment already completed")
	ErrInvalidCompletion  = errors.New("completion payload missing assessment or thread id")
	ErrNoCurrentQuestion  = errors.New("no question is currently presented")
	ErrNotCurrentQuestion = errors.New("question is not the current question")
	ErrUnknownOption      = errors.New("option does not belong to the current question")
)

// Phase is the lifecycle position of the attempt, independent of the
// connection status.
type Phase int

const (
	PhaseIdle       Phase = iota // nothing requested yet
	PhaseStarting                // start requested, not yet confirmed
	PhaseInProgress              // backend confirmed the start
	PhaseCompleted               // backend confirmed completion; terminal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseInProgress:
		return "in_progress"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// State is one candidate's attempt at one test.
type State struct {
	phase  Phase
	status model.ConnectionStatus

	assessmentID  string
	applicationID string
	connectionID  string
	threadID      string
	testID        int
	userID        int

	startTime *time.Time
	endTime   *time.Time

	current   *model.Question
	past      []model.Question
	archived  map[string]struct{}
	responses map[string]model.QuestionResponse
	progress  *model.Progress

	finalScore     *float64
	correctAnswers *int

	currentError *string
	logs         []model.ErrorLog

	reconnectAttempts int
	lastActivity      *time.Time
	lastInbound       time.Time

	newID func() string
}

// New returns a session at its defaults.
func New() *State {
	return &State{
		status:    model.StatusDisconnected,
		archived:  make(map[string]struct{}),
		responses: make(map[string]model.QuestionResponse),
		newID:     uuid.NewString,
	}
}

func (s *State) Phase() Phase { return s.phase }
func (s *State) Status() model.ConnectionStatus { return s.status }
func (s *State) Started() bool { return s.phase >= PhaseInProgress }
func (s *State) Completed() bool { return s.phase == PhaseCompleted }
func (s *State) TestID() int { return s.testID }
func (s *State) AssessmentID() string { return s.assessmentID }
func (s *State) ApplicationID() string { return s.applicationID }
func (s *State) ThreadID() string { return s.threadID }
func (s *State) ReconnectAttempts() int { return s.reconnectAttempts }

// Active reports whether the attempt is started and not yet completed.
func (s *State) Active() bool { return s.phase == PhaseInProgress }

// LastActivity returns the time of the last successful transition.
func (s *State) LastActivity() time.Time {
	if s.lastActivity == nil {
		return time.Time{}
	}
	return *s.lastActivity
}

// LastInbound returns the time the transport last delivered a frame.
func (s *State) LastInbound() time.Time { return s.lastInbound }

// CurrentQuestion returns a copy of the question in flight.
func (s *State) CurrentQuestion() (model.Question, bool) {
	if s.current == nil {
		return model.Question{}, false
	}
	return copyQuestion(*s.current), true
}

// Response returns the recorded response for a question.
func (s *State) Response(questionID string) (model.QuestionResponse, bool) {
	r, ok := s.responses[questionID]
	return r, ok
}

// SetIdentity records the test and candidate this session belongs to.
func (s *State) SetIdentity(testID, userID int) {
	s.testID = testID
	s.userID = userID
}

// Touch stamps the last-activity time.
func (s *State) Touch(now time.Time) {
	t := now
	s.lastActivity = &t
}

// MarkInbound records transport liveness. Local actions do not count.
func (s *State) MarkInbound(now time.Time) {
	s.lastInbound = now
}

// ─── Connection status ───────────────────────────────────────────────

// Connecting marks a fresh transport acquisition. Ignored once completed.
func (s *State) Connecting(now time.Time) bool {
	if s.Completed() {
		return false
	}
	s.status = model.StatusConnecting
	s.Touch(now)
	return true
}

// Reconnecting enters (or re-enters) the reconnecting status and returns
// the attempt number.
func (s *State) Reconnecting(now time.Time) int {
	if s.Completed() {
		return s.reconnectAttempts
	}
	s.status = model.StatusReconnecting
	s.reconnectAttempts++
	s.Touch(now)
	return s.reconnectAttempts
}

// Disconnected marks the transport released.
func (s *State) Disconnected(now time.Time) {
	s.status = model.StatusDisconnected
	s.Touch(now)
}

// Fail moves the connection to the error status and records entry as the
// current error. Completed sessions keep their status.
func (s *State) Fail(now time.Time, entry model.ErrorLog) {
	if !s.Completed() {
		s.status = model.StatusError
	}
	s.RecordError(now, entry, true)
}

// ─── Inbound transitions ────────────────────────────────────────────

// ApplyConnectionEstablished completes the handshake.
func (s *State) ApplyConnectionEstablished(now time.Time, connectionID string, testID int) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	s.status = model.StatusConnected
	s.connectionID = connectionID
	s.testID = testID
	s.reconnectAttempts = 0
	s.currentError = nil
	s.Touch(now)
	return nil
}

// BeginStart records a locally requested start. The start time is set once.
func (s *State) BeginStart(now time.Time, applicationID string) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	if applicationID != "" {
		s.applicationID = applicationID
	}
	if s.startTime == nil {
		t := now
		s.startTime = &t
	}
	if s.phase == PhaseIdle {
		s.phase = PhaseStarting
	}
	s.currentError = nil
	return nil
}

// ApplyStarted applies the backend's start confirmation.
func (s *State) ApplyStarted(now time.Time, assessmentID, threadID string, testID int) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	s.phase = PhaseInProgress
	s.assessmentID = assessmentID
	s.threadID = threadID
	if testID > 0 {
		s.testID = testID
	}
	if s.startTime == nil {
		t := now
		s.startTime = &t
	}
	s.currentError = nil
	s.Touch(now)
	return nil
}

// ApplyRecovered applies a server snapshot after reconnection. Progress is
// replaced wholesale; past questions and responses are kept.
func (s *State) ApplyRecovered(now time.Time, assessmentID, threadID string, progress model.Progress) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	s.phase = PhaseInProgress
	s.assessmentID = assessmentID
	s.threadID = threadID
	p := progress
	s.progress = &p
	s.currentError = nil
	s.Touch(now)
	return nil
}

// ApplyQuestion presents q, archiving the previous question first.
// Re-delivery of the current question refreshes its content only.
func (s *State) ApplyQuestion(now time.Time, q model.Question) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	if s.current != nil && s.current.QuestionID != q.QuestionID {
		if _, seen := s.archived[s.current.QuestionID]; !seen {
			s.past = append(s.past, *s.current)
			s.archived[s.current.QuestionID] = struct{}{}
		}
	}
	nq := copyQuestion(q)
	s.current = &nq
	s.currentError = nil
	s.Touch(now)
	return nil
}

// RecordAnswer stores an optimistic, unconfirmed response for the current
// question. A later answer for the same question overwrites the earlier one.
func (s *State) RecordAnswer(now time.Time, questionID, optionID string) (model.QuestionResponse, error) {
	if s.Completed() {
		return model.QuestionResponse{}, ErrSessionCompleted
	}
	if s.current == nil {
		return model.QuestionResponse{}, ErrNoCurrentQuestion
	}
	if s.current.QuestionID != questionID {
		return model.QuestionResponse{}, ErrNotCurrentQuestion
	}

	text := "Skipped"
	if optionID != model.SkippedOption {
		opt, ok := s.current.Option(optionID)
		if !ok {
			return model.QuestionResponse{}, ErrUnknownOption
		}
		text = opt.Option
	}

	r := model.QuestionResponse{
		SelectedOption: optionID,
		OptionText:     text,
		Timestamp:      now,
	}
	s.responses[questionID] = r
	s.Touch(now)
	return r, nil
}

// ApplyFeedback merges correctness into the local response and replaces progress.
func (s *State) ApplyFeedback(now time.Time, questionID string, correct bool, correctAnswer string, progress model.Progress) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	if r, ok := s.responses[questionID]; ok {
		c := correct
		r.IsCorrect = &c
		r.CorrectAnswer = correctAnswer
		r.Confirmed = true
		s.responses[questionID] = r
	}
	p := progress
	s.progress = &p
	s.Touch(now)
	return nil
}

// ApplyProgress replaces progress with a server update.
func (s *State) ApplyProgress(now time.Time, progress model.Progress) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	p := progress
	s.progress = &p
	s.Touch(now)
	return nil
}

// Completion is the final result reported by the backend.
type Completion struct {
	AssessmentID   string
	ThreadID       string
	FinalScore     float64
	CorrectAnswers int
	TotalQuestions int
}

// ApplyCompleted performs the terminal transition. A completion missing
// either identifier is rejected without touching any field.
func (s *State) ApplyCompleted(now time.Time, c Completion) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	if c.AssessmentID == "" || c.ThreadID == "" {
		return ErrInvalidCompletion
	}

	s.phase = PhaseCompleted
	s.assessmentID = c.AssessmentID
	s.threadID = c.ThreadID
	end := now
	s.endTime = &end
	score := c.FinalScore
	s.finalScore = &score
	correct := c.CorrectAnswers
	s.correctAnswers = &correct
	s.status = model.StatusDisconnected
	s.currentError = nil

	total := c.TotalQuestions
	if s.progress != nil && total == 0 {
		total = s.progress.TotalQuestions
	}
	s.progress = &model.Progress{AnsweredQuestions: total, TotalQuestions: total}

	s.Touch(now)
	return nil
}

// ─── Errors ─────────────────────────────────────────────────────────

// RecordError appends entry to the bounded log, assigning id and timestamp
// when unset. When surface is true the message becomes the current error.
func (s *State) RecordError(now time.Time, entry model.ErrorLog, surface bool) {
	if entry.ID == "" {
		entry.ID = s.newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if surface {
		msg := entry.Message
		s.currentError = &msg
	}

	s.logs = append(s.logs, entry)
	if over := len(s.logs) - MaxErrorLogs; over > 0 {
		trimmed := make([]model.ErrorLog, MaxErrorLogs)
		copy(trimmed, s.logs[over:])
		s.logs = trimmed
	}
}

// ClearError clears the current user-facing error.
func (s *State) ClearError() { s.currentError = nil }

// ClearErrorLogs empties the diagnostics log.
func (s *State) ClearErrorLogs() { s.logs = nil }

// Reset returns the session to its defaults, optionally keeping the error log.
func (s *State) Reset(preserveLogs bool) {
	logs := s.logs
	newID := s.newID
	*s = *New()
	s.newID = newID
	if preserveLogs {
		s.logs = logs
	}
}

// Snapshot returns a deep copy of the session.
func (s *State) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		AssessmentID:         s.assessmentID,
		ApplicationID:        s.applicationID,
		TestID:               s.testID,
		ConnectionID:         s.connectionID,
		ThreadID:             s.threadID,
		UserID:               s.userID,
		StartTime:            copyTime(s.startTime),
		EndTime:              copyTime(s.endTime),
		ConnectionStatus:     s.status,
		AssessmentStarted:    s.Started(),
		AssessmentCompleted:  s.Completed(),
		PastQuestions:        make([]model.Question, 0, len(s.past)),
		Responses:            make(map[string]model.QuestionResponse, len(s.responses)),
		ErrorLogs:            make([]model.ErrorLog, len(s.logs)),
		ReconnectAttempts:    s.reconnectAttempts,
		LastMessageTimestamp: copyTime(s.lastActivity),
	}

	if s.current != nil {
		q := copyQuestion(*s.current)
		snap.CurrentQuestion = &q
	}
	for _, q := range s.past {
		snap.PastQuestions = append(snap.PastQuestions, copyQuestion(q))
	}
	for id, r := range s.responses {
		if r.IsCorrect != nil {
			c := *r.IsCorrect
			r.IsCorrect = &c
		}
		snap.Responses[id] = r
	}
	if s.progress != nil {
		p := *s.progress
		snap.Progress = &p
	}
	if s.finalScore != nil {
		v := *s.finalScore
		snap.FinalScore = &v
	}
	if s.correctAnswers != nil {
		v := *s.correctAnswers
		snap.CorrectAnswers = &v
	}
	if s.currentError != nil {
		v := *s.currentError
		snap.CurrentError = &v
	}
	copy(snap.ErrorLogs, s.logs)

	return snap
}

func copyQuestion(q model.Question) model.Question {
	if q.Options != nil {
		opts := make([]model.QuestionOption, len(q.Options))
		copy(opts, q.Options)
		q.Options = opts
	}
	return q
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
