package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/stemsi/assessment-client/internal/model"
)

// terminal renders snapshot changes for the candidate. It is a store.Sink
// fed by the projector, so it only ever sees published state.
type terminal struct {
	mu  sync.Mutex
	out io.Writer

	status    model.ConnectionStatus
	question  string
	confirmed map[string]bool
	lastError string
	finished  bool
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out, confirmed: make(map[string]bool)}
}

func (t *terminal) Save(_ context.Context, s model.Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.ConnectionStatus != t.status {
		t.status = s.ConnectionStatus
		switch s.ConnectionStatus {
		case model.StatusReconnecting:
			fmt.Fprintf(t.out, "\n… connection lost, reconnecting (attempt %d)\n", s.ReconnectAttempts)
		case model.StatusConnected:
			fmt.Fprintln(t.out, "✓ connected")
		}
	}

	if s.CurrentError != nil && *s.CurrentError != t.lastError {
		t.lastError = *s.CurrentError
		fmt.Fprintf(t.out, "! %s\n", t.lastError)
	} else if s.CurrentError == nil {
		t.lastError = ""
	}

	for qid, r := range s.Responses {
		if r.Confirmed && !t.confirmed[qid] {
			t.confirmed[qid] = true
			verdict := "incorrect"
			if r.IsCorrect != nil && *r.IsCorrect {
				verdict = "correct"
			}
			fmt.Fprintf(t.out, "  → %s (%s)\n", verdict, r.OptionText)
		}
	}

	if s.CurrentQuestion != nil && s.CurrentQuestion.QuestionID != t.question {
		t.question = s.CurrentQuestion.QuestionID
		t.renderQuestion(s)
	}

	if s.AssessmentCompleted && !t.finished {
		t.finished = true
		fmt.Fprintln(t.out, "\n══ Assessment completed ══")
		if s.FinalScore != nil {
			fmt.Fprintf(t.out, "Score: %.1f\n", *s.FinalScore)
		}
		if s.CorrectAnswers != nil && s.Progress != nil {
			fmt.Fprintf(t.out, "Correct: %d / %d\n", *s.CorrectAnswers, s.Progress.TotalQuestions)
		}
	}
	return nil
}

func (t *terminal) renderQuestion(s model.Snapshot) {
	q := s.CurrentQuestion
	fmt.Fprintln(t.out)
	if s.Progress != nil && s.Progress.TotalQuestions > 0 {
		fmt.Fprintf(t.out, "[%d/%d · %.0f%%] ", s.Progress.AnsweredQuestions, s.Progress.TotalQuestions, s.Progress.Percent())
	}
	if q.Skill != "" || q.Difficulty != "" {
		fmt.Fprintf(t.out, "%s %s\n", q.Skill, q.Difficulty)
	}
	fmt.Fprintln(t.out, q.Text)
	for i, o := range q.Options {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, o.Option)
	}
	fmt.Fprintf(t.out, "Choose 1-%d, s to skip, c to complete, ? for help.\n", len(q.Options))
}

// resolveOption maps terminal input onto an option id of q.
func (t *terminal) resolveOption(q *model.Question, input string) (string, bool) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "s" || in == "skip" {
		return model.SkippedOption, true
	}
	if n, err := strconv.Atoi(in); err == nil {
		if n >= 1 && n <= len(q.Options) {
			return q.Options[n-1].OptionID, true
		}
		return "", false
	}
	if _, ok := q.Option(input); ok {
		return input, true
	}
	return "", false
}

func (t *terminal) notice(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", args...)
}

func (t *terminal) help() {
	t.notice(`Commands:
  <n>   answer with option n
  s     skip the current question
  c     complete the assessment
  i     request test info (logged)
  x     clear the current error
  q     quit`)
}
