// Package transport provides the bidirectional connection the assessment
// controller runs over. The controller only depends on Dialer and Conn;
// the WebSocket implementation lives in websocket.go.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transport closed")

// Conn is one live connection. Read blocks until a frame arrives or the
// connection fails; Write and Close may be called concurrently with Read.
type Conn interface {
	Read() ([]byte, error)
	Write(v interface{}) error
	Close() error
}

// Dialer opens a connection for one test.
type Dialer interface {
	Dial(ctx context.Context, testID int) (Conn, error)
}
