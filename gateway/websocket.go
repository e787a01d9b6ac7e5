package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/natsgate/message"
	"github.com/c360/natsgate/natsclient"
)

const defaultWSBufferSize = 4096

// newUpgrader builds the handshake upgrader from the configured limits.
// With no allowed_origins the upgrader accepts any origin: the gateway
// is the trust boundary and browser clients authenticate per-request,
// not per-origin. Listing origins restricts browser handshakes the same
// way cors_origins restricts the HTTP surface; non-browser clients send
// no Origin header and always pass.
func newUpgrader(cfg WebSocketLimits) websocket.Upgrader {
	readBuf := cfg.ReadBufferSize
	if readBuf <= 0 {
		readBuf = defaultWSBufferSize
	}
	writeBuf := cfg.WriteBufferSize
	if writeBuf <= 0 {
		writeBuf = defaultWSBufferSize
	}
	origins := cfg.AllowedOrigins

	return websocket.Upgrader{
		ReadBufferSize:  readBuf,
		WriteBufferSize: writeBuf,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// wsConn is one live WebSocket subscription. All frame writes go through
// writeFrame so the delivery goroutine, the keepalive loop, and shutdown
// never interleave partial frames.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	// lastDelivery drives the keepalive loop: delivered frames reset
	// the idle clock, keepalives themselves do not, so an idle
	// connection sees one keepalive per interval.
	lastDelivery time.Time

	// done closes when the read loop exits, stopping the keepalive loop
	done     chan struct{}
	doneOnce sync.Once
}

func (c *wsConn) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// handleWSSubscribe serves GET /ws/websocketmessages/{subjectFilter}.
// Messages matching the filter are delivered live through an ephemeral
// ordered consumer; nothing is acked.
func (g *Gateway) handleWSSubscribe(w http.ResponseWriter, r *http.Request) {
	filter := r.PathValue("subjectFilter")

	c, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	defer g.removeConn(c)

	// Holding the write mutex across consumer start guarantees the
	// SUBSCRIBE_ACK is the first frame even if a message arrives
	// immediately: the delivery handler blocks on the same mutex.
	c.writeMu.Lock()
	streamName, stop, err := g.broker.ConsumeFilter(g.lifecycleContext(), filter,
		func(fm natsclient.FetchedMessage) {
			g.deliver(c, fm, "")
		})
	if err != nil {
		c.writeMu.Unlock()
		g.failSubscription(c, r, err)
		return
	}
	defer stop()

	ackErr := c.writeFrameLocked(g, message.NewSubscribeAckFrame(
		fmt.Sprintf("subscribed to %s on stream %s", filter, streamName)))
	c.writeMu.Unlock()
	if ackErr != nil {
		return
	}

	g.logger.Info("WebSocket subscription started",
		"filter", filter, "stream", streamName, "remote", clientAddr(r))

	g.serveConn(c)
}

// handleWSDurable serves GET /ws/websocketmessages/{stream}/consumer/{consumer}.
// Frames carry the consumer name and each delivered message is acked, so
// the durable cursor advances.
func (g *Gateway) handleWSDurable(w http.ResponseWriter, r *http.Request) {
	streamName := r.PathValue("stream")
	consumerName := r.PathValue("consumer")

	c, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	defer g.removeConn(c)

	c.writeMu.Lock()
	stop, err := g.broker.ConsumeDurable(g.lifecycleContext(), streamName, consumerName,
		func(fm natsclient.FetchedMessage) {
			g.deliver(c, fm, consumerName)
		})
	if err != nil {
		c.writeMu.Unlock()
		g.failSubscription(c, r, err)
		return
	}
	defer stop()

	ackErr := c.writeFrameLocked(g, message.NewSubscribeAckFrame(
		fmt.Sprintf("bound to consumer %s on stream %s", consumerName, streamName)))
	c.writeMu.Unlock()
	if ackErr != nil {
		return
	}

	g.logger.Info("WebSocket durable subscription started",
		"stream", streamName, "consumer", consumerName, "remote", clientAddr(r))

	g.serveConn(c)
}

// upgrade performs the WebSocket handshake and registers the connection.
// The connection cap is checked before upgrading so rejected clients get
// a plain HTTP status instead of a doomed socket.
func (g *Gateway) upgrade(w http.ResponseWriter, r *http.Request) (*wsConn, bool) {
	maxConns := g.config.WebSocket.MaxConnections

	g.connsMu.Lock()
	if maxConns > 0 && len(g.conns) >= maxConns {
		g.connsMu.Unlock()
		g.writeError(w, http.StatusServiceUnavailable, "connection limit reached")
		return nil, false
	}
	g.connsMu.Unlock()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		g.logger.Warn("WebSocket upgrade failed", "remote", clientAddr(r), "error", err)
		g.requestsFailed.Add(1)
		return nil, false
	}

	c := &wsConn{
		conn:         conn,
		lastDelivery: time.Now(),
		done:         make(chan struct{}),
	}

	g.connsMu.Lock()
	g.conns[c] = struct{}{}
	g.connsMu.Unlock()

	if g.metrics != nil {
		g.metrics.RecordWSConnectionOpened()
	}

	return c, true
}

// removeConn unregisters and closes a connection
func (g *Gateway) removeConn(c *wsConn) {
	c.finish()

	g.connsMu.Lock()
	_, tracked := g.conns[c]
	delete(g.conns, c)
	g.connsMu.Unlock()

	_ = c.conn.Close()

	if tracked && g.metrics != nil {
		g.metrics.RecordWSConnectionClosed()
	}
}

// closeAllConns sends every live connection a CLOSE frame with the reason
// and tears it down. Called from Stop.
func (g *Gateway) closeAllConns(reason string) {
	g.connsMu.Lock()
	conns := make([]*wsConn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.connsMu.Unlock()

	for _, c := range conns {
		_ = c.writeFrame(g, message.NewCloseFrame(reason))
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
			time.Now().Add(time.Second))
		g.removeConn(c)
	}
}

// failSubscription reports a subscription failure in-band: an ERROR frame
// with the sanitized cause, a CLOSE frame, then the connection closes.
func (g *Gateway) failSubscription(c *wsConn, r *http.Request, err error) {
	g.logger.Warn("WebSocket subscription rejected",
		"path", r.URL.Path, "remote", clientAddr(r), "error", err)
	g.requestsFailed.Add(1)

	_ = c.writeFrame(g, message.NewErrorFrame(g.sanitizeError(err)))
	_ = c.writeFrame(g, message.NewCloseFrame("subscription failed"))
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscription failed"),
		time.Now().Add(time.Second))
}

// deliver sends one stream message to the client. A failed write marks
// the client as too slow or gone; closing the connection makes the read
// loop exit, which tears the subscription down.
func (g *Gateway) deliver(c *wsConn, fm natsclient.FetchedMessage, consumerName string) {
	frame := message.NewMessageFrame(&message.StreamMessage{
		Subject:   fm.Subject,
		Sequence:  fm.Sequence,
		SizeBytes: int64(len(fm.Data)),
		Timestamp: message.NewTimestamp(fm.Timestamp),
		Consumer:  consumerName,
		Data:      fm.Data,
	})

	if err := c.writeFrame(g, frame); err != nil {
		g.logger.Warn("WebSocket delivery failed, disconnecting client",
			"subject", fm.Subject, "sequence", fm.Sequence, "error", err)
		if g.metrics != nil {
			g.metrics.RecordWSSlowDisconnect()
		}
		_ = c.conn.Close()
	}
}

// serveConn runs the keepalive loop and the client read loop until the
// client disconnects or the gateway shuts down. The read loop only
// services pong frames and close detection; client data frames are
// ignored.
func (g *Gateway) serveConn(c *wsConn) {
	g.mu.RLock()
	wg := g.wg
	shutdown := g.shutdown
	g.mu.RUnlock()
	if wg == nil {
		// Stop already ran; the connection is being torn down
		return
	}

	wg.Add(1)
	go g.keepaliveLoop(c, wg, shutdown)

	readTimeout := g.config.WebSocket.ReadTimeout()

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	defer c.finish()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// Any client traffic proves liveness
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

// keepaliveLoop emits a KEEPALIVE control frame whenever the connection
// has been idle for the configured interval. Message delivery resets the
// idle clock, so busy connections never see keepalives.
func (g *Gateway) keepaliveLoop(c *wsConn, wg *sync.WaitGroup, shutdown chan struct{}) {
	defer wg.Done()

	interval := g.config.WebSocket.KeepaliveInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-shutdown:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			idle := time.Since(c.lastDelivery)
			var err error
			if idle >= interval {
				err = c.writeFrameLocked(g, message.NewKeepaliveFrame())
			}
			c.writeMu.Unlock()

			if err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

// writeFrame serializes and sends one frame under the connection's write
// mutex.
func (c *wsConn) writeFrame(g *Gateway, frame *message.WebSocketFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeFrameLocked(g, frame)
}

// writeFrameLocked sends a frame; the caller holds writeMu.
func (c *wsConn) writeFrameLocked(g *Gateway, frame *message.WebSocketFrame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(g.config.WebSocket.WriteTimeout()))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame.Marshal()); err != nil {
		return err
	}
	if !isKeepalive(frame) {
		c.lastDelivery = time.Now()
	}

	if g.metrics != nil {
		g.metrics.RecordWSFrame(frameLabel(frame))
	}
	return nil
}

func isKeepalive(frame *message.WebSocketFrame) bool {
	return frame.Control != nil && frame.Control.Type == message.ControlTypeKeepalive
}

// frameLabel returns the bounded metric label for a frame
func frameLabel(frame *message.WebSocketFrame) string {
	if frame.Type == message.FrameTypeMessage {
		return "message"
	}
	if frame.Control != nil {
		switch frame.Control.Type {
		case message.ControlTypeError:
			return "error"
		case message.ControlTypeSubscribeAck:
			return "subscribe_ack"
		case message.ControlTypeClose:
			return "close"
		case message.ControlTypeKeepalive:
			return "keepalive"
		}
	}
	return "control"
}
