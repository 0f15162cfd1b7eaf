package session

import (
	"fmt"
	"time"

	"github.com/stemsi/assessment-client/internal/model"
	"github.com/stemsi/assessment-client/internal/protocol"
)

// Apply maps one decoded inbound message to exactly one transition.
func (s *State) Apply(now time.Time, msg protocol.Message) error {
	switch p := msg.Payload.(type) {
	case *protocol.ConnectionEstablished:
		return s.ApplyConnectionEstablished(now, p.ConnectionID, p.TestID)
	case *protocol.AssessmentStarted:
		return s.ApplyStarted(now, p.AssessmentID, p.ThreadID, p.TestID)
	case *protocol.QuestionDelivered:
		return s.ApplyQuestion(now, p.ToModel())
	case *protocol.AnswerFeedback:
		return s.ApplyFeedback(now, p.QuestionID, p.Feedback.Correct, p.Feedback.CorrectAnswer, p.Progress.ToModel())
	case *protocol.ProgressBody:
		return s.ApplyProgress(now, p.ToModel())
	case *protocol.AssessmentRecovered:
		return s.ApplyRecovered(now, p.AssessmentID, p.ThreadID, p.Progress.ToModel())
	case *protocol.AssessmentCompleted:
		return s.ApplyCompleted(now, Completion{
			AssessmentID:   p.AssessmentID,
			ThreadID:       p.ThreadID,
			FinalScore:     p.FinalScore,
			CorrectAnswers: p.CorrectAnswers,
			TotalQuestions: p.TotalQuestions,
		})
	case *protocol.ErrorEvent:
		s.ApplyServerError(now, p)
		return nil
	case *protocol.Pong, *protocol.TestInfo:
		s.Touch(now)
		return nil
	default:
		return fmt.Errorf("%w: %q", protocol.ErrUnknownEvent, msg.Type)
	}
}

// ApplyServerError surfaces a backend rejection. A pending start returns
// to idle so it can be retried; local optimistic state is kept.
func (s *State) ApplyServerError(now time.Time, e *protocol.ErrorEvent) {
	if s.phase == PhaseStarting {
		s.phase = PhaseIdle
	}
	s.RecordError(now, model.ErrorLog{
		Type:        model.ErrorTypeServer,
		Message:     e.Message,
		Code:        e.Code,
		Details:     e.Details,
		Recoverable: e.Recoverable,
	}, true)
	s.Touch(now)
}
