package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/liuxd6825/portalshell/log"
)

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
)

// ConnOptions tune a Conn. Zero values select the defaults.
type ConnOptions struct {
	// Rate limits inbound messages per second; zero disables the limit.
	Rate  rate.Limit
	Burst int

	SendBuffer   int
	WriteTimeout time.Duration
}

/*
Conn is an Endpoint on top of a websocket connection.

A receive loop reads frames from the socket, rate limits and decodes them and
hands them to the Handler. A send loop drains the buffered outbound queue, so
Send never waits for the network.

	Handler  <── recvLoop <──┐
	                         │  websocket
	Send ──> sendCh ──> sendLoop ──>┘
*/
type Conn struct {
	id      string
	codec   Codec
	conn    *websocket.Conn
	handler Handler
	logger  *log.Logger

	limiter      *rate.Limiter
	writeTimeout time.Duration

	sendCh       chan []byte
	done         chan struct{}
	shutdownOnce sync.Once
}

var _ Endpoint = &Conn{}

// NewConn wraps ws and starts its loops. The handler is called from the
// receive loop.
func NewConn(id string, ws *websocket.Conn, codec Codec, handler Handler, logger *log.Logger, opts ConnOptions) *Conn {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	c := &Conn{
		id:           id,
		codec:        codec,
		conn:         ws,
		handler:      handler,
		logger:       logger,
		writeTimeout: opts.WriteTimeout,
		sendCh:       make(chan []byte, opts.SendBuffer),
		done:         make(chan struct{}),
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(opts.Rate, burst)
	}

	go c.recvLoop()
	go c.sendLoop()

	return c
}

// ID implements Endpoint.
func (c *Conn) ID() string { return c.id }

// Done implements Endpoint.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send implements Endpoint.
func (c *Conn) Send(cmd string, payload interface{}) error {
	buf, err := c.codec.Encode(cmd, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.sendCh <- buf:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Close implements Endpoint. It sends a normal closure frame.
func (c *Conn) Close() error {
	return c.closeConnection(websocket.CloseNormalClosure, nil)
}

// closeConnection cleanly closes the websocket connection and reports the
// closure to the handler, once.
func (c *Conn) closeConnection(code int, cause error) error {
	var (
		err    error
		closed bool
	)

	c.shutdownOnce.Do(func() {
		closed = true
		err = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(c.writeTimeout),
		)
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
		_ = c.conn.Close()
		close(c.done)
	})

	if closed {
		c.handler.HandleClose(c, cause)
	}
	return err
}

func (c *Conn) handleIOError(err error) {
	var cause error
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debugf("ws:close", "%s: %v", c.id, err)
		cause = err
	}
	code := websocket.CloseGoingAway
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
	}
	_ = c.closeConnection(code, cause)
}

func (c *Conn) recvLoop() {
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			c.handleIOError(err)
			return
		}

		c.logger.Tracef("ws:recv", "%s <- %s", c.id, buf)

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warnf("ws:recv", "%s: dropping message, rate limit exceeded", c.id)
			continue
		}

		env, ok, err := c.codec.Decode(buf)
		if err != nil {
			c.logger.Warnf("ws:recv", "%s: %v", c.id, err)
			continue
		}
		if !ok {
			continue
		}
		c.handler.HandleMessage(c, env)
	}
}

func (c *Conn) sendLoop() {
	for {
		select {
		case buf := <-c.sendCh:
			c.logger.Tracef("ws:send", "%s -> %s", c.id, buf)
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				c.handleIOError(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
