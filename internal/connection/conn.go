package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// controlTimeout bounds close and ping control frames.
const controlTimeout = time.Second

// Conn is one accepted WebSocket connection.
//
// Send may be called concurrently with Receive and with other Send calls.
// Receive must only be called from a single goroutine.
type Conn struct {
	cfg    Config
	logger *slog.Logger

	ws         *websocket.Conn
	remoteAddr string

	// Write serialization
	writeMu sync.Mutex

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
}

// New takes ownership of an upgraded WebSocket connection and marks it Open.
func New(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		cfg:        cfg,
		logger:     logger,
		ws:         ws,
		remoteAddr: ws.RemoteAddr().String(),
		done:       make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	if cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(cfg.MaxMessageBytes)
	}

	if cfg.PongTimeout > 0 {
		ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		})
	}

	// Acknowledge the peer's close frame, as the default handler does, but
	// record the transition first.
	ws.SetCloseHandler(func(code int, _ string) error {
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		msg := websocket.FormatCloseMessage(code, "")
		if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlTimeout)); err != nil {
			c.logger.Debug("failed to acknowledge close", "error", err)
		}
		return nil
	})

	c.state.Store(int32(StateOpen))

	if cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	return c
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// IsOpen reports whether the connection accepts frames.
func (c *Conn) IsOpen() bool {
	return c.State() == StateOpen
}

// Send writes one text frame.
func (c *Conn) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks until the next data frame arrives.
//
// Text and binary frames are both returned as-is. When the peer closes the
// connection the close handshake has already been answered and the returned
// error wraps ErrPeerClosed. A frame over MaxMessageBytes yields an error
// wrapping ErrFrameTooLarge and the connection stops accepting sends.
func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
			return nil, fmt.Errorf("%w: %v", ErrPeerClosed, closeErr)
		}
		// The websocket library has already sent 1009 (message too big).
		if errors.Is(err, websocket.ErrReadLimit) {
			c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
			return nil, fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
		}
		return nil, err
	}

	if c.cfg.PongTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	}
	return data, nil
}

// Fail marks an open connection as erroring. Sends are refused from then on.
func (c *Conn) Fail() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateErroring))
}

// Close sends a close frame (unless the peer already started the handshake)
// and closes the transport. Only the first call has any effect.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))
		close(c.done)

		if prev != StateClosing {
			msg := websocket.FormatCloseMessage(code, reason)
			if werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlTimeout)); werr != nil {
				c.logger.Debug("failed to send close frame", "error", werr)
			}
		}
		err = c.ws.Close()
	})
	return err
}

// heartbeatLoop pings the peer until the connection closes.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(controlTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}
