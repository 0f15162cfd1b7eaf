// Package controller owns the live assessment connection for one attempt.
// It is the only writer of the session state: user actions and inbound
// frames are serialized on one mutex, and every transition is published
// as a snapshot.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-client/internal/model"
	"github.com/stemsi/assessment-client/internal/protocol"
	"github.com/stemsi/assessment-client/internal/session"
	"github.com/stemsi/assessment-client/internal/transport"
)

// Publisher receives a snapshot after every transition. It must not block.
type Publisher interface {
	Publish(snap model.Snapshot)
}

// Options configures a Controller.
type Options struct {
	Policy ReconnectPolicy
	// HeartbeatInterval is the ping period while a transport is attached. Zero disables pings.
	HeartbeatInterval time.Duration
	// StaleAfter closes a transport that has been silent this long. Zero disables the check.
	StaleAfter time.Duration
	// UserID is the candidate id, used to key persisted snapshots.
	UserID int

	Clock func() time.Time
	After func(d time.Duration) <-chan time.Time
}

// Controller drives one assessment attempt over a transport.
type Controller struct {
	dialer    transport.Dialer
	publisher Publisher
	policy    ReconnectPolicy
	heartbeat time.Duration
	stale     time.Duration
	userID    int
	now       func() time.Time
	after     func(d time.Duration) <-chan time.Time
	log       zerolog.Logger

	mu    sync.Mutex
	state *session.State
	conn  transport.Conn
	// epoch advances whenever the owning transport changes or is released;
	// goroutines carrying an older epoch drop their work.
	epoch         uint64
	stopReconnect context.CancelFunc
	stopHeartbeat context.CancelFunc
	resubmitted   map[string]time.Time

	wg sync.WaitGroup
}

// New creates a new Controller. publisher may be nil.
func New(dialer transport.Dialer, publisher Publisher, log zerolog.Logger, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	return &Controller{
		dialer:      dialer,
		publisher:   publisher,
		policy:      opts.Policy,
		heartbeat:   opts.HeartbeatInterval,
		stale:       opts.StaleAfter,
		userID:      opts.UserID,
		now:         opts.Clock,
		after:       opts.After,
		log:         log.With().Str("component", "assessment_controller").Logger(),
		state:       session.New(),
		resubmitted: make(map[string]time.Time),
	}
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// ─── Actions ────────────────────────────────────────────────────────

// Connect opens the transport for testID. The status is connecting until
// the backend acknowledges the handshake. A failed dial moves the session
// to the error status and is not retried.
func (c *Controller) Connect(ctx context.Context, testID int) error {
	if testID <= 0 {
		return ErrInvalidTestID
	}

	c.mu.Lock()
	if c.state.Completed() {
		c.mu.Unlock()
		return ErrCompleted
	}
	if c.state.Status().Active() {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.epoch++
	epoch := c.epoch
	c.state.SetIdentity(testID, c.userID)
	c.state.Connecting(c.now())
	c.publishLocked()
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, testID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		if conn != nil {
			conn.Close()
		}
		return ErrConnectCancelled
	}
	if err != nil {
		c.log.Error().Err(err).Int("test_id", testID).Msg("Connect failed")
		c.state.Fail(c.now(), model.ErrorLog{
			Type:        model.ErrorTypeTransport,
			Message:     "Unable to connect to the assessment server.",
			Details:     err.Error(),
			Recoverable: true,
		})
		c.epoch++
		c.publishLocked()
		return fmt.Errorf("connect test %d: %w", testID, err)
	}

	c.attachLocked(conn)
	c.log.Info().Int("test_id", testID).Msg("Transport attached")
	c.publishLocked()
	return nil
}

// StartAssessment asks the backend to start the attempt. The session is
// marked started only when the backend confirms.
func (c *Controller) StartAssessment(applicationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Completed() {
		return ErrCompleted
	}
	if c.state.Status() != model.StatusConnected {
		return ErrNotConnected
	}
	if c.state.Started() {
		return ErrAlreadyStarted
	}

	now := c.now()
	if err := c.state.BeginStart(now, applicationID); err != nil {
		return err
	}

	err := c.sendLocked(protocol.ActionStartAssessment, protocol.StartAssessmentRequest{
		TestID:        c.state.TestID(),
		ApplicationID: c.state.ApplicationID(),
	})
	if err != nil {
		c.state.RecordError(now, model.ErrorLog{
			Type:        model.ErrorTypeTransport,
			Message:     "Failed to start the assessment.",
			Details:     err.Error(),
			Recoverable: true,
		}, true)
	}
	c.publishLocked()
	return err
}

// SubmitAnswer records the answer locally and sends it. The local record
// survives a failed send so the candidate can retry.
func (c *Controller) SubmitAnswer(questionID, optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Completed() {
		return ErrCompleted
	}
	if !c.state.Started() {
		return ErrNotStarted
	}
	if c.state.Status() != model.StatusConnected {
		return ErrNotConnected
	}

	now := c.now()
	if _, err := c.state.RecordAnswer(now, questionID, optionID); err != nil {
		c.log.Warn().Err(err).Str("question_id", questionID).Msg("Answer rejected")
		c.state.RecordError(now, model.ErrorLog{
			Type:        model.ErrorTypeClient,
			Message:     err.Error(),
			Details:     fmt.Sprintf("question_id=%s option_id=%s", questionID, optionID),
			Recoverable: true,
		}, false)
		c.publishLocked()
		return err
	}

	err := c.sendLocked(protocol.ActionSubmitAnswer, protocol.SubmitAnswerRequest{
		QuestionID:     questionID,
		SelectedOption: optionID,
		ThreadID:       c.state.ThreadID(),
	})
	if err != nil {
		c.state.RecordError(now, model.ErrorLog{
			Type:        model.ErrorTypeTransport,
			Message:     "Your answer was saved but could not be sent. Please retry.",
			Details:     err.Error(),
			Recoverable: true,
		}, true)
	}
	c.publishLocked()
	return err
}

// CompleteAssessment asks the backend to finish and grade the attempt.
func (c *Controller) CompleteAssessment() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Completed() {
		return ErrCompleted
	}
	if !c.state.Started() {
		return ErrNotStarted
	}
	if c.state.Status() != model.StatusConnected {
		return ErrNotConnected
	}

	err := c.sendLocked(protocol.ActionCompleteAssessment, protocol.CompleteAssessmentRequest{
		AssessmentID: c.state.AssessmentID(),
		ThreadID:     c.state.ThreadID(),
	})
	if err != nil {
		c.state.RecordError(c.now(), model.ErrorLog{
			Type:        model.ErrorTypeTransport,
			Message:     "Failed to submit the assessment.",
			Details:     err.Error(),
			Recoverable: true,
		}, true)
		c.publishLocked()
	}
	return err
}

// RequestTestInfo asks the backend for test metadata. The reply is logged.
func (c *Controller) RequestTestInfo() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status() != model.StatusConnected {
		return ErrNotConnected
	}
	return c.sendLocked(protocol.ActionGetTestInfo, protocol.TestInfoRequest{TestID: c.state.TestID()})
}

// Disconnect cancels reconnection and releases the transport. Frames that
// arrive afterwards are dropped. Safe to call repeatedly.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	released := c.releaseLocked()
	if c.state.Status() == model.StatusDisconnected && !released {
		return
	}
	c.state.Disconnected(c.now())
	c.log.Info().Int("test_id", c.state.TestID()).Msg("Disconnected")
	c.publishLocked()
}

// Close disconnects and waits for background goroutines to exit.
func (c *Controller) Close() {
	c.Disconnect()
	c.wg.Wait()
}

// Reset disconnects and returns the session to its defaults.
func (c *Controller) Reset(preserveLogs bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	c.state.Reset(preserveLogs)
	c.resubmitted = make(map[string]time.Time)
	c.publishLocked()
}

// ClearError clears the current user-facing error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ClearError()
	c.publishLocked()
}

// ClearErrorLogs empties the diagnostics log.
func (c *Controller) ClearErrorLogs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ClearErrorLogs()
	c.publishLocked()
}

// ─── Transport ownership ────────────────────────────────────────────

func (c *Controller) attachLocked(conn transport.Conn) {
	c.epoch++
	epoch := c.epoch
	c.conn = conn
	c.state.MarkInbound(c.now())

	c.wg.Add(1)
	go c.readLoop(epoch, conn)

	if c.heartbeat > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.stopHeartbeat = cancel
		c.wg.Add(1)
		go c.heartbeatLoop(ctx, epoch, conn)
	}
}

// releaseLocked invalidates the current epoch and closes the transport.
// It reports whether anything was released.
func (c *Controller) releaseLocked() bool {
	released := c.conn != nil || c.stopReconnect != nil
	c.epoch++
	if c.stopReconnect != nil {
		c.stopReconnect()
		c.stopReconnect = nil
	}
	if c.stopHeartbeat != nil {
		c.stopHeartbeat()
		c.stopHeartbeat = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("Transport close error")
		}
		c.conn = nil
	}
	return released
}

func (c *Controller) sendLocked(action protocol.Action, data interface{}) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.Write(protocol.NewRequest(action, data)); err != nil {
		c.log.Warn().Err(err).Str("action", string(action)).Msg("Send failed")
		return fmt.Errorf("send %s: %w", action, err)
	}
	c.log.Debug().Str("action", string(action)).Msg("Sent")
	return nil
}

func (c *Controller) publishLocked() {
	if c.publisher != nil {
		c.publisher.Publish(c.state.Snapshot())
	}
}

// ─── Inbound ────────────────────────────────────────────────────────

func (c *Controller) readLoop(epoch uint64, conn transport.Conn) {
	defer c.wg.Done()

	for {
		frame, err := conn.Read()
		if err != nil {
			c.handleClosed(epoch, err)
			return
		}
		if !c.handleFrame(epoch, frame) {
			return
		}
	}
}

// handleFrame applies one inbound frame. It returns false once the
// frame's epoch is stale so the reader stops.
func (c *Controller) handleFrame(epoch uint64, frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return false
	}

	now := c.now()
	c.state.MarkInbound(now)
	msg, err := protocol.Decode(frame)
	if err != nil {
		c.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("Dropped inbound message")
		c.state.RecordError(now, model.ErrorLog{
			Type:        model.ErrorTypeProtocol,
			Message:     protocolErrorMessage(msg.Type),
			Details:     err.Error(),
			Recoverable: true,
		}, msg.Type == protocol.EventAssessmentCompleted)
		c.publishLocked()
		return true
	}

	if err := c.state.Apply(now, msg); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionCompleted):
			c.log.Debug().Str("type", string(msg.Type)).Msg("Ignored message after completion")
			return true
		case errors.Is(err, session.ErrInvalidCompletion):
			c.state.RecordError(now, model.ErrorLog{
				Type:        model.ErrorTypeProtocol,
				Message:     protocolErrorMessage(msg.Type),
				Details:     err.Error(),
				Recoverable: true,
			}, true)
		default:
			c.state.RecordError(now, model.ErrorLog{
				Type:        model.ErrorTypeProtocol,
				Message:     "Unexpected message from the assessment server.",
				Details:     err.Error(),
				Recoverable: true,
			}, false)
		}
		c.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("Message not applied")
		c.publishLocked()
		return true
	}

	c.afterApplyLocked(msg)
	c.publishLocked()
	return true
}

func (c *Controller) afterApplyLocked(msg protocol.Message) {
	switch p := msg.Payload.(type) {
	case *protocol.ConnectionEstablished:
		c.log.Info().
			Str("connection_id", p.ConnectionID).
			Int("test_id", p.TestID).
			Msg("Connection established")
		if c.state.Active() {
			err := c.sendLocked(protocol.ActionResumeAssessment, protocol.ResumeAssessmentRequest{
				TestID:       c.state.TestID(),
				AssessmentID: c.state.AssessmentID(),
				ThreadID:     c.state.ThreadID(),
			})
			if err != nil {
				c.log.Warn().Err(err).Msg("Resume request failed")
			}
		}

	case *protocol.AssessmentStarted:
		c.log.Info().Str("assessment_id", p.AssessmentID).Msg("Assessment started")

	case *protocol.AssessmentRecovered:
		c.log.Info().
			Str("assessment_id", p.AssessmentID).
			Int("answered", p.Progress.AnsweredQuestions).
			Int("total", p.Progress.TotalQuestions).
			Msg("Assessment recovered")
		c.resubmitPendingLocked()

	case *protocol.AssessmentCompleted:
		c.log.Info().
			Float64("score", p.FinalScore).
			Int("correct", p.CorrectAnswers).
			Int("total", p.TotalQuestions).
			Msg("Assessment completed")
		c.releaseLocked()

	case *protocol.ErrorEvent:
		c.log.Warn().Str("code", p.Code).Str("message", p.Message).Msg("Server error")

	case *protocol.TestInfo:
		c.log.Info().Interface("test_info", map[string]interface{}(*p)).Msg("Test info")
	}
}

// resubmitPendingLocked re-sends the unconfirmed answer to the still-current
// question once per recorded answer. Answers to archived questions are left
// for the candidate.
func (c *Controller) resubmitPendingLocked() {
	q, ok := c.state.CurrentQuestion()
	if !ok {
		return
	}
	r, ok := c.state.Response(q.QuestionID)
	if !ok || r.Confirmed {
		return
	}
	if last, done := c.resubmitted[q.QuestionID]; done && last.Equal(r.Timestamp) {
		return
	}
	c.resubmitted[q.QuestionID] = r.Timestamp

	err := c.sendLocked(protocol.ActionSubmitAnswer, protocol.SubmitAnswerRequest{
		QuestionID:     q.QuestionID,
		SelectedOption: r.SelectedOption,
		ThreadID:       c.state.ThreadID(),
	})
	if err != nil {
		c.log.Warn().Err(err).Str("question_id", q.QuestionID).Msg("Resubmit failed")
		return
	}
	c.log.Info().Str("question_id", q.QuestionID).Msg("Resubmitted unconfirmed answer")
}

func protocolErrorMessage(t protocol.Event) string {
	if t == protocol.EventAssessmentCompleted {
		return "Received an invalid completion from the assessment server."
	}
	return "Received a malformed message from the assessment server."
}

// ─── Closure and reconnection ───────────────────────────────────────

func (c *Controller) handleClosed(epoch uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return
	}

	c.conn = nil
	if c.stopHeartbeat != nil {
		c.stopHeartbeat()
		c.stopHeartbeat = nil
	}

	now := c.now()
	evt := c.log.Warn()
	if transport.IsNormalClose(cause) {
		evt = c.log.Info()
	}
	evt.Err(cause).Bool("started", c.state.Started()).Msg("Transport closed")

	if c.state.Active() && c.policy.MaxAttempts > 0 {
		// Redials that drop before the handshake never reset the count.
		if c.state.ReconnectAttempts() >= c.policy.MaxAttempts {
			c.log.Error().Err(cause).Int("attempts", c.state.ReconnectAttempts()).Msg("Reconnection abandoned")
			c.exhaustLocked(now, cause)
			c.publishLocked()
			return
		}
		c.state.RecordError(now, model.ErrorLog{
			Type:        model.ErrorTypeTransport,
			Message:     "Connection lost. Reconnecting.",
			Details:     cause.Error(),
			Recoverable: true,
		}, false)
		c.startReconnectLocked(now)
		c.publishLocked()
		return
	}

	c.epoch++
	c.state.Fail(now, model.ErrorLog{
		Type:        model.ErrorTypeTransport,
		Message:     "Connection to the assessment server was lost.",
		Details:     cause.Error(),
		Recoverable: false,
	})
	c.publishLocked()
}

func (c *Controller) startReconnectLocked(now time.Time) {
	if c.stopReconnect != nil {
		c.stopReconnect()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopReconnect = cancel
	c.epoch++

	attempt := c.state.Reconnecting(now)
	c.wg.Add(1)
	go c.reconnectLoop(ctx, c.epoch, c.state.TestID(), attempt)
}

func (c *Controller) reconnectLoop(ctx context.Context, epoch uint64, testID, attempt int) {
	defer c.wg.Done()

	for {
		delay := c.policy.Delay(attempt)
		c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnect scheduled")

		select {
		case <-ctx.Done():
			return
		case <-c.after(delay):
		}

		conn, err := c.dialer.Dial(ctx, testID)

		c.mu.Lock()
		if epoch != c.epoch || ctx.Err() != nil {
			c.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			return
		}

		if err == nil {
			c.stopReconnect()
			c.stopReconnect = nil
			c.attachLocked(conn)
			c.log.Info().Int("attempt", attempt).Msg("Transport reattached")
			c.publishLocked()
			c.mu.Unlock()
			return
		}

		now := c.now()
		c.state.RecordError(now, model.ErrorLog{
			Type:        model.ErrorTypeTransport,
			Message:     fmt.Sprintf("Reconnect attempt %d failed.", attempt),
			Details:     err.Error(),
			Recoverable: true,
		}, false)

		if attempt >= c.policy.MaxAttempts {
			c.log.Error().Err(err).Int("attempts", attempt).Msg("Reconnection abandoned")
			c.exhaustLocked(now, err)
			c.publishLocked()
			c.mu.Unlock()
			return
		}

		attempt = c.state.Reconnecting(now)
		c.publishLocked()
		c.mu.Unlock()
	}
}

// exhaustLocked gives up on reconnection and surfaces a non-recoverable error.
func (c *Controller) exhaustLocked(now time.Time, cause error) {
	if c.stopReconnect != nil {
		c.stopReconnect()
		c.stopReconnect = nil
	}
	c.epoch++
	c.state.Fail(now, model.ErrorLog{
		Type:        model.ErrorTypeTransport,
		Message:     "Unable to reconnect to the assessment server. Please restart the assessment.",
		Code:        CodeReconnectExhausted,
		Details:     cause.Error(),
		Recoverable: false,
	})
}

// ─── Heartbeat ──────────────────────────────────────────────────────

func (c *Controller) heartbeatLoop(ctx context.Context, epoch uint64, conn transport.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.beat(epoch, conn) {
				return
			}
		}
	}
}

// beat pings the backend, or closes a stale transport so the reader
// observes the closure and the reconnection policy takes over.
func (c *Controller) beat(epoch uint64, conn transport.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return false
	}

	if c.stale > 0 {
		if idle := c.now().Sub(c.state.LastInbound()); idle > c.stale {
			c.log.Warn().Dur("idle", idle).Msg("Transport stale, closing")
			conn.Close()
			return false
		}
	}

	if err := conn.Write(protocol.NewRequest(protocol.ActionPing, protocol.PingRequest{})); err != nil {
		c.log.Debug().Err(err).Msg("Ping failed")
	}
	return true
}
