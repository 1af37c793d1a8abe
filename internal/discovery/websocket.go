package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"castpair/internal/domain"
)

// DefaultPath is the HTTP path the websocket endpoint is served on.
const DefaultPath = "/pair"

const writeTimeout = 10 * time.Second

type wsConn struct {
	*websocket.Conn
	wmu sync.Mutex
}

func (c *wsConn) writeFrame(f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteJSON(f)
}

// WebSocketChannel is a discovery channel served over a local websocket.
type WebSocketChannel struct {
	addr     string
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	handlers    map[domain.Namespace]domain.MessageHandler
	disconnects []domain.DisconnectHandler
	conns       map[domain.SenderID]*wsConn
	opts        domain.ChannelOptions
	ln          net.Listener
	srv         *http.Server
	idle        *time.Timer
	started     bool
	closed      bool
	done        chan struct{}
}

// NewWebSocketChannel returns a channel that will listen on addr.
func NewWebSocketChannel(addr string, log logrus.FieldLogger) *WebSocketChannel {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebSocketChannel{
		addr: addr,
		log:  log.WithField("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Companions are native apps and browsers on the local network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		handlers: make(map[domain.Namespace]domain.MessageHandler),
		conns:    make(map[domain.SenderID]*wsConn),
		done:     make(chan struct{}),
	}
}

func (c *WebSocketChannel) OnMessage(namespace domain.Namespace, handler domain.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[namespace] = handler
}

func (c *WebSocketChannel) OnDisconnect(handler domain.DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects = append(c.disconnects, handler)
}

// Start listens and serves until Stop is called or ctx ends.
func (c *WebSocketChannel) Start(ctx context.Context, opts domain.ChannelOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.started {
		return errors.New("discovery channel already started")
	}
	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.addr, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(DefaultPath, c.serveWS)
	c.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	c.ln = ln
	c.opts = opts
	c.started = true
	c.armIdleLocked()

	go func() {
		if err := c.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.WithError(err).Error("websocket server stopped")
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-c.done:
		}
	}()
	c.log.WithField("addr", ln.Addr().String()).Info("discovery channel listening")
	return nil
}

// Addr returns the listening address once started.
func (c *WebSocketChannel) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return ""
	}
	return c.ln.Addr().String()
}

// URL returns the websocket URL companions dial.
func (c *WebSocketChannel) URL() string { return "ws://" + c.Addr() + DefaultPath }

func (c *WebSocketChannel) Send(namespace domain.Namespace, to domain.SenderID, payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	conn := c.conns[to]
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSender, to)
	}
	return conn.writeFrame(Frame{Namespace: namespace, Data: json.RawMessage(payload)})
}

// Stop closes every connection and the listener. Disconnect handlers are
// not called for connections closed by Stop.
func (c *WebSocketChannel) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.stopIdleLocked()
	conns := make([]*wsConn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	srv := c.srv
	c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "pairing closed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}
	if srv != nil {
		return srv.Close()
	}
	return nil
}

func (c *WebSocketChannel) serveWS(w http.ResponseWriter, r *http.Request) {
	raw, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	conn := &wsConn{Conn: raw}
	id := domain.SenderID(uuid.NewString())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = raw.Close()
		return
	}
	c.conns[id] = conn
	c.stopIdleLocked()
	opts := c.opts
	c.mu.Unlock()

	log := c.log.WithFields(logrus.Fields{"sender": id.String(), "remote": r.RemoteAddr})
	log.Info("sender connected")
	c.readLoop(id, conn, opts, log)

	c.mu.Lock()
	delete(c.conns, id)
	closed := c.closed
	handlers := append([]domain.DisconnectHandler(nil), c.disconnects...)
	if !closed && len(c.conns) == 0 {
		c.armIdleLocked()
	}
	c.mu.Unlock()
	_ = raw.Close()

	if closed {
		return
	}
	log.Info("sender disconnected")
	for _, h := range handlers {
		h(id)
	}
}

func (c *WebSocketChannel) readLoop(
	id domain.SenderID,
	conn *wsConn,
	opts domain.ChannelOptions,
	log logrus.FieldLogger,
) {
	extend := func() {
		if opts.MaxInactivity > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(opts.MaxInactivity))
		}
	}
	extend()
	conn.SetPongHandler(func(string) error { extend(); return nil })

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		extend()

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			log.WithError(err).Warn("ignoring malformed frame")
			continue
		}
		c.mu.Lock()
		h := c.handlers[f.Namespace]
		c.mu.Unlock()
		if h == nil {
			log.WithField("namespace", f.Namespace.String()).Debug("no handler for namespace")
			continue
		}
		data := []byte(f.Data)
		if len(data) == 0 {
			data = []byte("{}")
		}
		h(id, data)
	}
}

func (c *WebSocketChannel) armIdleLocked() {
	if c.opts.DisableIdleTimeout || c.opts.MaxInactivity <= 0 || c.idle != nil {
		return
	}
	c.idle = time.AfterFunc(c.opts.MaxInactivity, c.idleExpired)
}

func (c *WebSocketChannel) stopIdleLocked() {
	if c.idle != nil {
		c.idle.Stop()
		c.idle = nil
	}
}

func (c *WebSocketChannel) idleExpired() {
	c.mu.Lock()
	if c.closed || len(c.conns) > 0 {
		c.mu.Unlock()
		return
	}
	c.idle = nil
	handlers := append([]domain.DisconnectHandler(nil), c.disconnects...)
	c.mu.Unlock()

	c.log.Info("no sender connected before idle timeout, stopping")
	_ = c.Stop()
	for _, h := range handlers {
		h("")
	}
}

var _ domain.DiscoveryChannel = (*WebSocketChannel)(nil)
