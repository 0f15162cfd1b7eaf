package transport

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSOptions configures a WSDialer.
type WSOptions struct {
	// BaseURL is the assessment endpoint; the test id is appended as the last path segment.
	BaseURL string
	// Token is sent as the ?token= query parameter.
	Token            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout bounds the silence between two frames. Zero disables it.
	ReadTimeout time.Duration
}

// WSDialer dials the assessment backend over WebSocket.
type WSDialer struct {
	opts   WSOptions
	dialer *websocket.Dialer
	log    zerolog.Logger
}

// NewWSDialer creates a new WSDialer.
func NewWSDialer(opts WSOptions, log zerolog.Logger) *WSDialer {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 15 * time.Second
	}
	return &WSDialer{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		log: log.With().Str("component", "ws_transport").Logger(),
	}
}

// URL builds the endpoint for testID.
func (d *WSDialer) URL(testID int) (string, error) {
	u, err := url.Parse(d.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse assessment URL: %w", err)
	}
	u.Path = path.Join(u.Path, strconv.Itoa(testID))
	if d.opts.Token != "" {
		q := u.Query()
		q.Set("token", d.opts.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial opens a WebSocket connection for testID.
func (d *WSDialer) Dial(ctx context.Context, testID int) (Conn, error) {
	endpoint, err := d.URL(testID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial assessment socket: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial assessment socket: %w", err)
	}

	d.log.Debug().Int("test_id", testID).Msg("Socket connected")

	return &wsConn{
		conn:         conn,
		writeTimeout: d.opts.WriteTimeout,
		readTimeout:  d.opts.ReadTimeout,
	}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Read() ([]byte, error) {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Write sends v as a JSON text frame.
func (c *wsConn) Write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

// Close sends a normal close frame and releases the socket. Safe to call more than once.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// IsNormalClose reports whether err is a clean close from the peer.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
