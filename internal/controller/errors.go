package controller

import (
	"errors"

	"github.com/stemsi/assessment-client/internal/session"
)

// Precondition failures. Client misuse is rejected before anything is sent.
var (
	ErrInvalidTestID      = errors.New("test id must be a positive integer")
	ErrAlreadyConnected   = errors.New("assessment connection already active")
	ErrNotConnected       = errors.New("assessment connection not established")
	ErrAlreadyStarted     = errors.New("assessment already started")
	ErrNotStarted         = errors.New("assessment not started")
	ErrConnectCancelled   = errors.New("connect cancelled by disconnect")
	ErrCompleted          = session.ErrSessionCompleted
	ErrNoCurrentQuestion  = session.ErrNoCurrentQuestion
	ErrNotCurrentQuestion = session.ErrNotCurrentQuestion
	ErrUnknownOption      = session.ErrUnknownOption
)

// CodeReconnectExhausted marks the error log entry written when reconnection is abandoned.
const CodeReconnectExhausted = "RECONNECT_EXHAUSTED"
