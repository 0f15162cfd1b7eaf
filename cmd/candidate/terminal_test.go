package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/assessment-client/internal/model"
)

func sampleQuestion() *model.Question {
	return &model.Question{
		QuestionID: "q1",
		Text:       "Which keyword starts a goroutine?",
		Options: []model.QuestionOption{
			{OptionID: "optA", Option: "go"},
			{OptionID: "optB", Option: "defer"},
		},
	}
}

func TestResolveOption(t *testing.T) {
	term := newTerminal(&bytes.Buffer{})
	q := sampleQuestion()

	cases := map[string]struct {
		want string
		ok   bool
	}{
		"1":    {"optA", true},
		"2":    {"optB", true},
		"3":    {"", false},
		"s":    {model.SkippedOption, true},
		"optB": {"optB", true},
		"zzz":  {"", false},
	}
	for in, tc := range cases {
		got, ok := term.resolveOption(q, in)
		assert.Equal(t, tc.ok, ok, in)
		assert.Equal(t, tc.want, got, in)
	}
}

func TestTerminalRendersOnlyChanges(t *testing.T) {
	var buf bytes.Buffer
	term := newTerminal(&buf)
	ctx := context.Background()

	snap := model.Snapshot{
		ConnectionStatus: model.StatusConnected,
		CurrentQuestion:  sampleQuestion(),
		Progress:         &model.Progress{AnsweredQuestions: 0, TotalQuestions: 4},
		Responses:        map[string]model.QuestionResponse{},
	}
	require.NoError(t, term.Save(ctx, snap))
	require.NoError(t, term.Save(ctx, snap))
	assert.Equal(t, 1, strings.Count(buf.String(), "Which keyword"))

	correct := true
	snap.Responses["q1"] = model.QuestionResponse{SelectedOption: "optA", OptionText: "go", Confirmed: true, IsCorrect: &correct}
	require.NoError(t, term.Save(ctx, snap))
	assert.Contains(t, buf.String(), "correct (go)")

	score := 100.0
	snap.AssessmentCompleted = true
	snap.FinalScore = &score
	require.NoError(t, term.Save(ctx, snap))
	require.NoError(t, term.Save(ctx, snap))
	assert.Equal(t, 1, strings.Count(buf.String(), "Assessment completed"))
	assert.Contains(t, buf.String(), "Score: 100.0")
}

func TestFatal(t *testing.T) {
	assert.False(t, fatal(model.Snapshot{ConnectionStatus: model.StatusConnected}))
	assert.False(t, fatal(model.Snapshot{
		ConnectionStatus: model.StatusError,
		ErrorLogs:        []model.ErrorLog{{Recoverable: true}},
	}))
	assert.True(t, fatal(model.Snapshot{
		ConnectionStatus: model.StatusError,
		ErrorLogs:        []model.ErrorLog{{Recoverable: false, Code: "RECONNECT_EXHAUSTED"}},
	}))
}
