package protocol

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/scarmonit-creator/LLM-sub005/internal/bridge"
	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Default maximum message size allowed from peer.
	defaultMaxMessageBytes = 1 << 20

	// Outbound frames buffered per connection before Send reports failure.
	sendBuffer = 256
)

var (
	// ErrConnClosed is returned by Send and Ping after the connection closed
	ErrConnClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when a slow peer has not drained its buffer
	ErrSendBufferFull = errors.New("send buffer full")
)

// WSOptions configures the streaming endpoint
type WSOptions struct {
	// AllowedOrigins restricts browser origins; empty or "*" allows all
	AllowedOrigins  []string
	MaxMessageBytes int64
	Logger          zerolog.Logger
}

// WSHandler upgrades connections and binds each one to the bridge
type WSHandler struct {
	ctx      context.Context
	bridge   *bridge.Bridge
	upgrader websocket.Upgrader
	maxBytes int64
	logger   zerolog.Logger

	mu    sync.Mutex
	conns map[*WSClient]struct{}
}

// NewWSHandler creates the streaming endpoint. ctx bounds every bridge call
// made on behalf of the connections it accepts; when it is cancelled every
// open connection is closed, registered or not.
func NewWSHandler(ctx context.Context, b *bridge.Bridge, opts WSOptions) *WSHandler {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	origins := opts.AllowedOrigins

	h := &WSHandler{
		ctx:    ctx,
		bridge: b,
		conns:  make(map[*WSClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r.Header.Get("Origin"))
			},
		},
		maxBytes: opts.MaxMessageBytes,
		logger:   opts.Logger.With().Str("component", "websocket").Logger(),
	}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			h.closeAll()
		}()
	}
	return h
}

// track adds c to the open set. It fails once the handler context is done.
func (h *WSHandler) track(c *WSClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *WSHandler) untrack(c *WSClient) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *WSHandler) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.Close()
	}
	clear(h.conns)
}

// Connections returns the number of open connections
func (h *WSHandler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func originAllowed(allowed []string, origin string) bool {
	// non-browser agents send no Origin header
	if origin == "" || len(allowed) == 0 || slices.Contains(allowed, "*") {
		return true
	}
	return slices.Contains(allowed, origin)
}

// ServeHTTP handles the upgrade and starts the connection pumps
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c := newWSClient(h, conn)
	if !h.track(c) {
		// shutting down: writePump sends the close frame and drops the socket
		c.Close()
		go c.writePump()
		return
	}
	h.logger.Debug().Str("remote_addr", conn.RemoteAddr().String()).Msg("connection opened")

	go c.writePump()
	go c.readPump()
}

type outbound struct {
	msg  *wire.Message
	ping bool
}

// WSClient is one streaming connection. It implements bridge.Transport:
// Send and Ping only queue work for writePump and never block the caller.
type WSClient struct {
	handler *WSHandler
	conn    *websocket.Conn
	send    chan outbound
	done    chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	clientID string
}

func newWSClient(h *WSHandler, conn *websocket.Conn) *WSClient {
	return &WSClient{
		handler: h,
		conn:    conn,
		send:    make(chan outbound, sendBuffer),
		done:    make(chan struct{}),
	}
}

// Send queues msg for the peer
func (c *WSClient) Send(msg *wire.Message) error {
	return c.enqueue(outbound{msg: msg})
}

// Ping queues a protocol level ping frame
func (c *WSClient) Ping() error {
	return c.enqueue(outbound{ping: true})
}

func (c *WSClient) enqueue(item outbound) error {
	if c.Closed() {
		return ErrConnClosed
	}
	select {
	case c.send <- item:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Closed reports whether Close has been called
func (c *WSClient) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and closes the socket
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// ClientID returns the registered id, or "" before registration
func (c *WSClient) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *WSClient) setClientID(id string) {
	c.mu.Lock()
	c.clientID = id
	c.mu.Unlock()
}

// readPump decodes inbound frames and hands them to the bridge
func (c *WSClient) readPump() {
	ctx := c.handler.ctx
	logger := c.handler.logger

	defer func() {
		if id := c.ClientID(); id != "" {
			if err := c.handler.bridge.Detach(ctx, id, c); err != nil && !errors.Is(err, bridge.ErrStopped) {
				logger.Debug().Err(err).Str("client_id", id).Msg("detach failed")
			}
		}
		c.Close()
		c.handler.untrack(c)
	}()

	c.conn.SetReadLimit(c.handler.maxBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if id := c.ClientID(); id != "" {
			return ignoreStopped(c.handler.bridge.Touch(ctx, id))
		}
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.Closed() {
				logger.Info().Err(err).Str("client_id", c.ClientID()).Msg("connection read failed")
			}
			return
		}

		if err := c.handleFrame(ctx, data); err != nil {
			logger.Debug().Err(err).Str("client_id", c.ClientID()).Msg("stop reading")
			return
		}
	}
}

func ignoreStopped(err error) error {
	if errors.Is(err, bridge.ErrStopped) {
		return nil
	}
	return err
}

// handleFrame processes one inbound frame. A returned error ends the
// connection; protocol problems are answered with an error frame instead.
func (c *WSClient) handleFrame(ctx context.Context, data []byte) error {
	b := c.handler.bridge

	req, err := wire.DecodeFrame(data)
	if err != nil {
		c.handler.logger.Warn().Err(err).Str("client_id", c.ClientID()).Msg("malformed frame")
		c.Send(wire.NewErrorMessage(bridge.ErrMalformedMessage(err).Error()))
		return b.ReportMalformed(ctx, c.ClientID(), err)
	}

	id := c.ClientID()

	switch req := req.(type) {
	case *wire.RegisterRequest:
		if id != "" && req.ClientID != id {
			c.Send(wire.NewErrorMessage("connection already registered as " + id))
			return nil
		}
		meta, err := b.Register(ctx, c, *req)
		if err != nil {
			return c.replyError(err)
		}
		c.setClientID(meta.ID)

	case *wire.HeartbeatRequest:
		if id == "" {
			c.Send(wire.NewErrorMessage("not registered"))
			return nil
		}
		if err := b.Heartbeat(ctx, id); err != nil {
			return c.replyError(err)
		}

	case *wire.EnvelopeRequest:
		if id == "" {
			c.Send(wire.NewErrorMessage("not registered"))
			return nil
		}
		opts := bridge.DefaultAcceptOptions()
		opts.Source = id
		if _, err := b.Accept(ctx, req.Envelope, opts); err != nil {
			return c.replyError(err)
		}
	}
	return nil
}

// replyError answers a failed bridge call. Bridge errors become error frames;
// anything else, such as shutdown, ends the connection.
func (c *WSClient) replyError(err error) error {
	var be *bridge.Error
	if errors.As(err, &be) && be.Code != bridge.CodeStopped {
		c.Send(wire.NewErrorMessage(be.Error()))
		return nil
	}
	return err
}

// writePump writes queued frames and keepalive pings to the connection
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case item := <-c.send:
			if err := c.write(item); err != nil {
				c.writeFailed(err)
				return
			}

		case <-ticker.C:
			if err := c.write(outbound{ping: true}); err != nil {
				c.writeFailed(err)
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *WSClient) write(item outbound) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if item.ping {
		return c.conn.WriteMessage(websocket.PingMessage, nil)
	}
	return c.conn.WriteJSON(item.msg)
}

func (c *WSClient) writeFailed(err error) {
	c.Close()
	id := c.ClientID()
	c.handler.logger.Info().Err(err).Str("client_id", id).Msg("connection write failed")
	if id != "" {
		ignoreStopped(c.handler.bridge.ReportDeliveryFailure(c.handler.ctx, id, err))
	}
}
