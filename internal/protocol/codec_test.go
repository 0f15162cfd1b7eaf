package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownEvents(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  interface{}
	}{
		{
			name:  "connection established",
			frame: `{"type":"connection_established","data":{"connection_id":"c1","user_id":3,"test_id":42}}`,
			want:  &ConnectionEstablished{ConnectionID: "c1", UserID: 3, TestID: 42},
		},
		{
			name:  "assessment started",
			frame: `{"type":"assessment_started","data":{"assessment_id":"a1","thread_id":"t1","test_id":42}}`,
			want:  &AssessmentStarted{AssessmentID: "a1", ThreadID: "t1", TestID: 42},
		},
		{
			name:  "progress update",
			frame: `{"type":"progress_update","data":{"answered_questions":2,"total_questions":10}}`,
			want:  &ProgressBody{AnsweredQuestions: 2, TotalQuestions: 10},
		},
		{
			name:  "server error",
			frame: `{"type":"error","data":{"message":"not allowed","code":"FORBIDDEN","recoverable":true}}`,
			want:  &ErrorEvent{Message: "not allowed", Code: "FORBIDDEN", Recoverable: true},
		},
		{
			name:  "pong without data",
			frame: `{"type":"pong"}`,
			want:  &Pong{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.frame))
			require.NoError(t, err)
			assert.Equal(t, tc.want, msg.Payload)
		})
	}
}

func TestDecode_Question(t *testing.T) {
	frame := `{"type":"question","data":{"question_id":"q1","thread_id":"t1","question":{"text":"Pick one","options":[{"option_id":"a","option":"Alpha"},{"option_id":"b","option":"Beta"}],"difficulty":"medium","skill":"sql","time_limit":60}}}`

	msg, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Equal(t, EventQuestion, msg.Type)

	q := msg.Payload.(*QuestionDelivered).ToModel()
	assert.Equal(t, "q1", q.QuestionID)
	assert.Equal(t, "Pick one", q.Text)
	assert.Equal(t, 60, q.TimeLimit)
	require.Len(t, q.Options, 2)
	assert.Equal(t, "Beta", q.Options[1].Option)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantErr  error
		wantType Event
	}{
		{"not json", `{"type":`, ErrMalformedFrame, ""},
		{"missing type", `{"data":{}}`, ErrMalformedFrame, ""},
		{"unknown type", `{"type":"shutdown","data":{}}`, ErrUnknownEvent, "shutdown"},
		{"wrong field type", `{"type":"progress_update","data":{"answered_questions":"two"}}`, ErrMalformedFrame, EventProgressUpdate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.frame))
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.wantType, msg.Type)
			assert.Nil(t, msg.Payload)
		})
	}
}

func TestDecode_CompletionValidation(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"missing assessment id", `{"final_score":80,"correct_answers":4,"total_questions":5,"thread_id":"t1"}`, "assessment_id"},
		{"missing thread id", `{"final_score":80,"correct_answers":4,"total_questions":5,"assessment_id":"a1"}`, "thread_id"},
		{"negative count", `{"final_score":80,"correct_answers":-1,"total_questions":5,"assessment_id":"a1","thread_id":"t1"}`, "correct_answers"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(`{"type":"assessment_completed","data":` + tc.data + `}`))
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, EventAssessmentCompleted, msg.Type)
			assert.Contains(t, ve.Fields, tc.field)
			assert.Nil(t, msg.Payload)
		})
	}
}

func TestDecode_QuestionRequiresOptionIDs(t *testing.T) {
	frame := `{"type":"question","data":{"question_id":"q1","question":{"text":"Pick","options":[{"option":"no id"}]}}}`
	_, err := Decode([]byte(frame))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "option_id")
}

func TestNewRequest_Envelope(t *testing.T) {
	raw, err := json.Marshal(NewRequest(ActionSubmitAnswer, SubmitAnswerRequest{
		QuestionID:     "q2",
		SelectedOption: "optB",
		ThreadID:       "t1",
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"submit_answer","data":{"question_id":"q2","selected_option":"optB","thread_id":"t1"}}`, string(raw))

	raw, err = json.Marshal(NewRequest(ActionPing, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","data":{}}`, string(raw))
}
