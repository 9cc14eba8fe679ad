// Package net carries sketch frames between the two devices and finds
// hosts on the local network.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"SharedSketch/internal/protocol"
	"SharedSketch/internal/telemetry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Path is where the host accepts the peer's websocket.
	Path = "/sketch"
	// DeviceHeader carries each side's device name during the upgrade.
	DeviceHeader = "X-Sketch-Device"
)

var (
	// ErrBusy is returned when the host already has its one peer.
	ErrBusy = errors.New("net: a peer is already connected")
	// ErrBufferFull is returned by Send when the writer cannot keep up.
	ErrBufferFull = errors.New("net: send buffer full")
)

// Handler receives connection events. Calls come from the endpoint's
// reader goroutine, so implementations hand them off to the session loop.
type Handler interface {
	Connected(peer string)
	Received(peer string, data []byte)
	Disconnected(peer string)
}

// Options tune an Endpoint.
type Options struct {
	DeviceName      string
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	// SendBuffer is how many frames may wait for the writer.
	SendBuffer int
}

// Endpoint is one side of the two-party link: the host accepts a single
// peer over HTTP, the joiner dials the host. Either way it is the
// protocol.Pipe the session writes to.
type Endpoint struct {
	handler  Handler
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *conn
	wg   sync.WaitGroup
}

type conn struct {
	ws   *websocket.Conn
	peer string
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// NewEndpoint returns an endpoint reporting to h.
func NewEndpoint(h Handler, opts Options, log *zap.Logger) *Endpoint {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Endpoint{
		handler: h,
		opts:    opts,
		log:     log.Named("net"),
		upgrader: websocket.Upgrader{
			// The share link is only handed out on the local network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Connected reports whether a peer is attached.
func (e *Endpoint) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// ServeHTTP upgrades the peer's request. A second peer is turned away with
// 409 Conflict.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e.Connected() {
		http.Error(w, ErrBusy.Error(), http.StatusConflict)
		return
	}
	header := http.Header{}
	header.Set(DeviceHeader, e.opts.DeviceName)
	ws, err := e.upgrader.Upgrade(w, r, header)
	if err != nil {
		e.log.Warn("upgrade", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	peer := r.Header.Get(DeviceHeader)
	if peer == "" {
		peer = r.RemoteAddr
	}
	if err := e.attach(ws, peer); err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
	}
}

// Listen serves the host side on addr until ctx is done.
func (e *Endpoint) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("net: listen %s: %w", addr, err)
	}
	return e.Serve(ctx, ln)
}

// Serve accepts the peer on ln until ctx is done.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(Path, telemetry.Instrument("upgrade", e))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	e.log.Info("host listening", zap.Stringer("addr", ln.Addr()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
		e.Close()
		return nil
	}
}

// Dial connects to the host at addr (host:port).
func (e *Endpoint) Dial(ctx context.Context, addr string) error {
	header := http.Header{}
	header.Set(DeviceHeader, e.opts.DeviceName)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+addr+Path, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return fmt.Errorf("net: dial %s: %w", addr, ErrBusy)
		}
		return fmt.Errorf("net: dial %s: %w", addr, err)
	}
	peer := resp.Header.Get(DeviceHeader)
	if peer == "" {
		peer = addr
	}
	if err := e.attach(ws, peer); err != nil {
		_ = ws.Close()
		return err
	}
	return nil
}

func (e *Endpoint) attach(ws *websocket.Conn, peer string) error {
	c := &conn{
		ws:   ws,
		peer: peer,
		out:  make(chan []byte, e.opts.SendBuffer),
		done: make(chan struct{}),
	}
	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return ErrBusy
	}
	e.conn = c
	e.mu.Unlock()

	if e.opts.MaxMessageBytes > 0 {
		ws.SetReadLimit(e.opts.MaxMessageBytes)
	}
	e.log.Info("peer connected", zap.String("peer", peer), zap.String("remote", ws.RemoteAddr().String()))
	e.handler.Connected(peer)

	e.wg.Add(2)
	go e.readLoop(c)
	go e.writeLoop(c)
	return nil
}

func (e *Endpoint) detach(c *conn) {
	c.close()
	e.mu.Lock()
	if e.conn == c {
		e.conn = nil
	}
	e.mu.Unlock()
}

func (e *Endpoint) readLoop(c *conn) {
	defer e.wg.Done()
	defer func() {
		e.detach(c)
		e.log.Info("peer disconnected", zap.String("peer", c.peer))
		e.handler.Disconnected(c.peer)
	}()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					e.log.Warn("read", zap.String("peer", c.peer), zap.Error(err))
				}
			}
			return
		}
		e.handler.Received(c.peer, data)
	}
}

func (e *Endpoint) writeLoop(c *conn) {
	defer e.wg.Done()
	for {
		select {
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(e.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				e.log.Warn("write", zap.String("peer", c.peer), zap.Error(err))
				e.detach(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send queues one frame for the peer.
func (e *Endpoint) Send(data []byte) error {
	e.mu.Lock()
	c := e.conn
	e.mu.Unlock()
	if c == nil {
		return protocol.ErrNotConnected
	}
	select {
	case <-c.done:
		return protocol.ErrNotConnected
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return protocol.ErrNotConnected
	default:
		return ErrBufferFull
	}
}

// Close says goodbye to the peer and waits for the connection goroutines.
func (e *Endpoint) Close() {
	e.mu.Lock()
	c := e.conn
	e.mu.Unlock()
	if c != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.close()
	}
	e.wg.Wait()
}
