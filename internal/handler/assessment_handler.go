package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-client/internal/controller"
	"github.com/stemsi/assessment-client/internal/middleware"
	"github.com/stemsi/assessment-client/internal/model"
	"github.com/stemsi/assessment-client/internal/response"
	"github.com/stemsi/assessment-client/internal/store"
	"github.com/stemsi/assessment-client/internal/validator"
)

// Session is the controller surface the local API drives.
type Session interface {
	Snapshot() model.Snapshot
	Connect(ctx context.Context, testID int) error
	StartAssessment(applicationID string) error
	SubmitAnswer(questionID, optionID string) error
	CompleteAssessment() error
	RequestTestInfo() error
	Disconnect()
	Reset(preserveLogs bool)
	ClearError()
	ClearErrorLogs()
}

// LatestSnapshot exposes the last projected snapshot.
type LatestSnapshot interface {
	Latest() (model.Snapshot, bool)
}

// SnapshotLoader reads stored snapshots of any candidate and test.
type SnapshotLoader interface {
	Load(ctx context.Context, userID, testID int) (*model.Snapshot, error)
}

type AssessmentHandler struct {
	session Session
	latest  LatestSnapshot
	stored  SnapshotLoader
	log     zerolog.Logger
}

// NewAssessmentHandler creates a new AssessmentHandler. stored may be nil
// when no snapshot store is configured.
func NewAssessmentHandler(session Session, latest LatestSnapshot, stored SnapshotLoader, log zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		session: session,
		latest:  latest,
		stored:  stored,
		log:     log.With().Str("component", "assessment_handler").Logger(),
	}
}

// GetSnapshot godoc
// GET /api/v1/assessment/snapshot
func (h *AssessmentHandler) GetSnapshot(c *gin.Context) {
	snap, ok := h.latest.Latest()
	if !ok {
		snap = h.session.Snapshot()
	}
	response.Success(c, http.StatusOK, gin.H{"snapshot": snap, "percent_complete": percent(snap)})
}

// GetStoredSnapshot godoc
// GET /api/v1/assessment/snapshots/:user_id/:test_id
func (h *AssessmentHandler) GetStoredSnapshot(c *gin.Context) {
	if h.stored == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStoreDisabled)
		return
	}

	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || userID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	// A candidate may only read their own snapshots.
	if claims := middleware.GetClaims(c); claims != nil && claims.UserID != userID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}
	testID, err := strconv.Atoi(c.Param("test_id"))
	if err != nil || testID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	snap, err := h.stored.Load(c.Request.Context(), userID, testID)
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrSnapshotNotFound)
			return
		}
		h.log.Error().Err(err).Int("user_id", userID).Int("test_id", testID).Msg("Load snapshot failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"snapshot": snap, "percent_complete": percent(*snap)})
}

// Connect godoc
// POST /api/v1/assessment/connect
func (h *AssessmentHandler) Connect(c *gin.Context) {
	var req model.ConnectRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.session.Connect(c.Request.Context(), req.TestID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"snapshot": h.session.Snapshot()})
}

// Start godoc
// POST /api/v1/assessment/start
func (h *AssessmentHandler) Start(c *gin.Context) {
	var req model.StartRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	if err := h.session.StartAssessment(req.ApplicationID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"snapshot": h.session.Snapshot()})
}

// SubmitAnswer godoc
// POST /api/v1/assessment/answers
func (h *AssessmentHandler) SubmitAnswer(c *gin.Context) {
	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.session.SubmitAnswer(req.QuestionID, req.OptionID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"snapshot": h.session.Snapshot()})
}

// Complete godoc
// POST /api/v1/assessment/complete
func (h *AssessmentHandler) Complete(c *gin.Context) {
	if err := h.session.CompleteAssessment(); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"message": "completion requested"})
}

// RequestTestInfo godoc
// POST /api/v1/assessment/test-info
func (h *AssessmentHandler) RequestTestInfo(c *gin.Context) {
	if err := h.session.RequestTestInfo(); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"message": "test info requested"})
}

// Disconnect godoc
// POST /api/v1/assessment/disconnect
func (h *AssessmentHandler) Disconnect(c *gin.Context) {
	h.session.Disconnect()
	response.Success(c, http.StatusOK, gin.H{"snapshot": h.session.Snapshot()})
}

// Reset godoc
// POST /api/v1/assessment/reset
func (h *AssessmentHandler) Reset(c *gin.Context) {
	var req model.ResetRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	h.session.Reset(req.PreserveLogs)
	response.Success(c, http.StatusOK, gin.H{"snapshot": h.session.Snapshot()})
}

// ClearError godoc
// DELETE /api/v1/assessment/error
func (h *AssessmentHandler) ClearError(c *gin.Context) {
	h.session.ClearError()
	response.Success(c, http.StatusOK, gin.H{"message": "error cleared"})
}

// ClearErrorLogs godoc
// DELETE /api/v1/assessment/logs
func (h *AssessmentHandler) ClearErrorLogs(c *gin.Context) {
	h.session.ClearErrorLogs()
	response.Success(c, http.StatusOK, gin.H{"message": "error logs cleared"})
}

// fail maps controller errors onto the response envelope.
func (h *AssessmentHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, controller.ErrInvalidTestID):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
	case errors.Is(err, controller.ErrNotConnected):
		response.Fail(c, http.StatusConflict, response.ErrNotConnected)
	case errors.Is(err, controller.ErrAlreadyConnected):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyConnected)
	case errors.Is(err, controller.ErrAlreadyStarted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyStarted)
	case errors.Is(err, controller.ErrNotStarted):
		response.Fail(c, http.StatusConflict, response.ErrNotStarted)
	case errors.Is(err, controller.ErrCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentCompleted)
	case errors.Is(err, controller.ErrNoCurrentQuestion):
		response.Fail(c, http.StatusConflict, response.ErrNoCurrentQuestion)
	case errors.Is(err, controller.ErrNotCurrentQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNotCurrentQuestion)
	case errors.Is(err, controller.ErrUnknownOption):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownOption)
	default:
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("Action failed")
		response.FailWithDetail(c, http.StatusBadGateway, response.ErrSendFailed, err.Error())
	}
}

func percent(s model.Snapshot) float64 {
	if s.Progress == nil {
		return 0
	}
	return s.Progress.Percent()
}
