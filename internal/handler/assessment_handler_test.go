package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/assessment-client/internal/controller"
	"github.com/stemsi/assessment-client/internal/middleware"
	"github.com/stemsi/assessment-client/internal/model"
	"github.com/stemsi/assessment-client/internal/response"
	"github.com/stemsi/assessment-client/internal/store"
	"github.com/stemsi/assessment-client/internal/transport"
	"github.com/stemsi/assessment-client/internal/validator"
)

type fakeSession struct {
	snap  model.Snapshot
	err   error
	calls []string
}

func (f *fakeSession) Snapshot() model.Snapshot { return f.snap }

func (f *fakeSession) Connect(_ context.Context, testID int) error {
	f.calls = append(f.calls, fmt.Sprintf("connect:%d", testID))
	return f.err
}

func (f *fakeSession) StartAssessment(applicationID string) error {
	f.calls = append(f.calls, "start:"+applicationID)
	return f.err
}

func (f *fakeSession) SubmitAnswer(questionID, optionID string) error {
	f.calls = append(f.calls, "answer:"+questionID+":"+optionID)
	return f.err
}

func (f *fakeSession) CompleteAssessment() error {
	f.calls = append(f.calls, "complete")
	return f.err
}

func (f *fakeSession) RequestTestInfo() error {
	f.calls = append(f.calls, "test-info")
	return f.err
}

func (f *fakeSession) Disconnect()         { f.calls = append(f.calls, "disconnect") }
func (f *fakeSession) Reset(preserve bool) { f.calls = append(f.calls, fmt.Sprintf("reset:%t", preserve)) }
func (f *fakeSession) ClearError()         { f.calls = append(f.calls, "clear-error") }
func (f *fakeSession) ClearErrorLogs()     { f.calls = append(f.calls, "clear-logs") }

type loaderFunc func(ctx context.Context, userID, testID int) (*model.Snapshot, error)

func (f loaderFunc) Load(ctx context.Context, userID, testID int) (*model.Snapshot, error) {
	return f(ctx, userID, testID)
}

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

func newTestEngine(h *AssessmentHandler) *gin.Engine {
	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	g := r.Group("/api/v1/assessment")
	g.GET("/snapshot", h.GetSnapshot)
	g.GET("/snapshots/:user_id/:test_id", h.GetStoredSnapshot)
	g.POST("/connect", h.Connect)
	g.POST("/start", h.Start)
	g.POST("/answers", h.SubmitAnswer)
	g.POST("/complete", h.Complete)
	g.POST("/disconnect", h.Disconnect)
	g.POST("/reset", h.Reset)
	g.DELETE("/error", h.ClearError)
	return r
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, response.Response) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestGetSnapshot_PrefersProjected(t *testing.T) {
	sess := &fakeSession{snap: model.Snapshot{TestID: 1}}
	mem := store.NewMemorySink()
	r := newTestEngine(NewAssessmentHandler(sess, mem, nil, zerolog.Nop()))

	w, resp := do(r, http.MethodGet, "/api/v1/assessment/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["snapshot"].(map[string]interface{})["test_id"])

	require.NoError(t, mem.Save(context.Background(), model.Snapshot{
		TestID:   42,
		Progress: &model.Progress{AnsweredQuestions: 1, TotalQuestions: 4},
	}))
	w, resp = do(r, http.MethodGet, "/api/v1/assessment/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	data = resp.Data.(map[string]interface{})
	assert.EqualValues(t, 42, data["snapshot"].(map[string]interface{})["test_id"])
	assert.EqualValues(t, 25, data["percent_complete"])
	assert.NotEmpty(t, resp.Metadata.RequestID)
}

func TestGetStoredSnapshot(t *testing.T) {
	sess := &fakeSession{}
	loader := loaderFunc(func(_ context.Context, userID, testID int) (*model.Snapshot, error) {
		if userID == 7 && testID == 42 {
			return &model.Snapshot{UserID: 7, TestID: 42, AssessmentStarted: true}, nil
		}
		return nil, store.ErrSnapshotNotFound
	})
	r := newTestEngine(NewAssessmentHandler(sess, store.NewMemorySink(), loader, zerolog.Nop()))

	w, _ := do(r, http.MethodGet, "/api/v1/assessment/snapshots/7/42", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := do(r, http.MethodGet, "/api/v1/assessment/snapshots/7/43", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, response.ErrSnapshotNotFound, resp.Error.Code)

	w, resp = do(r, http.MethodGet, "/api/v1/assessment/snapshots/abc/42", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrInvalidID, resp.Error.Code)
}

func TestGetStoredSnapshot_OtherCandidateForbidden(t *testing.T) {
	loader := loaderFunc(func(_ context.Context, userID, testID int) (*model.Snapshot, error) {
		return &model.Snapshot{UserID: userID, TestID: testID}, nil
	})
	h := NewAssessmentHandler(&fakeSession{}, store.NewMemorySink(), loader, zerolog.Nop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &transport.CandidateClaims{UserID: 7})
		c.Next()
	})
	r.GET("/snapshots/:user_id/:test_id", h.GetStoredSnapshot)

	w, _ := do(r, http.MethodGet, "/snapshots/7/42", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := do(r, http.MethodGet, "/snapshots/8/42", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.ErrForbidden, resp.Error.Code)
}

func TestGetStoredSnapshot_StoreDisabled(t *testing.T) {
	r := newTestEngine(NewAssessmentHandler(&fakeSession{}, store.NewMemorySink(), nil, zerolog.Nop()))

	w, resp := do(r, http.MethodGet, "/api/v1/assessment/snapshots/7/42", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, response.ErrStoreDisabled, resp.Error.Code)
}

func TestConnect_Validation(t *testing.T) {
	sess := &fakeSession{}
	r := newTestEngine(NewAssessmentHandler(sess, store.NewMemorySink(), nil, zerolog.Nop()))

	w, resp := do(r, http.MethodPost, "/api/v1/assessment/connect", `{"test_id":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrValidation, resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "test_id")
	assert.Empty(t, sess.calls)

	w, _ = do(r, http.MethodPost, "/api/v1/assessment/connect", `{"test_id":42}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"connect:42"}, sess.calls)
}

func TestStart_OptionalBody(t *testing.T) {
	sess := &fakeSession{}
	r := newTestEngine(NewAssessmentHandler(sess, store.NewMemorySink(), nil, zerolog.Nop()))

	w, _ := do(r, http.MethodPost, "/api/v1/assessment/start", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w, _ = do(r, http.MethodPost, "/api/v1/assessment/start", `{"application_id":"app-9"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	assert.Equal(t, []string{"start:", "start:app-9"}, sess.calls)
}

func TestSubmitAnswer(t *testing.T) {
	sess := &fakeSession{}
	r := newTestEngine(NewAssessmentHandler(sess, store.NewMemorySink(), nil, zerolog.Nop()))

	w, resp := do(r, http.MethodPost, "/api/v1/assessment/answers", `{"question_id":"q2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Error.Fields, "option_id")

	w, _ = do(r, http.MethodPost, "/api/v1/assessment/answers", `{"question_id":"q2","option_id":"optB"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"answer:q2:optB"}, sess.calls)
}

func TestActionErrorsMapToCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{controller.ErrNotConnected, http.StatusConflict, response.ErrNotConnected},
		{controller.ErrNotStarted, http.StatusConflict, response.ErrNotStarted},
		{controller.ErrCompleted, http.StatusConflict, response.ErrAssessmentCompleted},
		{controller.ErrNotCurrentQuestion, http.StatusUnprocessableEntity, response.ErrNotCurrentQuestion},
		{controller.ErrUnknownOption, http.StatusUnprocessableEntity, response.ErrUnknownOption},
		{fmt.Errorf("send submit_answer: %w", assert.AnError), http.StatusBadGateway, response.ErrSendFailed},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			sess := &fakeSession{err: tc.err}
			r := newTestEngine(NewAssessmentHandler(sess, store.NewMemorySink(), nil, zerolog.Nop()))

			w, resp := do(r, http.MethodPost, "/api/v1/assessment/answers", `{"question_id":"q1","option_id":"optA"}`)
			assert.Equal(t, tc.status, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestLifecycleActions(t *testing.T) {
	sess := &fakeSession{}
	r := newTestEngine(NewAssessmentHandler(sess, store.NewMemorySink(), nil, zerolog.Nop()))

	w, _ := do(r, http.MethodPost, "/api/v1/assessment/complete", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	w, _ = do(r, http.MethodPost, "/api/v1/assessment/disconnect", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(r, http.MethodPost, "/api/v1/assessment/reset", `{"preserve_logs":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(r, http.MethodDelete, "/api/v1/assessment/error", "")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"complete", "disconnect", "reset:true", "clear-error"}, sess.calls)
}
