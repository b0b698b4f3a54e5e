package notify

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"swap-guard/internal/domain"
)

var (
	// ErrObserverClosed is returned by Send after the connection is gone.
	ErrObserverClosed = errors.New("observer closed")
	// ErrObserverSlow is returned when the send queue is full.
	ErrObserverSlow = errors.New("observer send queue full")
)

// WSConfig configures server-side websocket observers.
type WSConfig struct {
	// SendBuffer is the number of queued events per connection.
	SendBuffer int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long to wait for a pong before giving up.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default observer configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		SendBuffer:   64,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// WSObserver streams events to one websocket connection as JSON text frames.
type WSObserver struct {
	conn   *websocket.Conn
	config WSConfig

	send      chan domain.Event
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWSObserver wraps an upgraded connection and starts its pumps.
func NewWSObserver(conn *websocket.Conn, config *WSConfig) *WSObserver {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1
	}

	o := &WSObserver{
		conn:   conn,
		config: cfg,
		send:   make(chan domain.Event, cfg.SendBuffer),
		done:   make(chan struct{}),
	}

	o.wg.Add(2)
	go o.writePump()
	go o.readPump()

	return o
}

// Send queues ev without blocking.
func (o *WSObserver) Send(ev domain.Event) error {
	if o.closed.Load() {
		return ErrObserverClosed
	}
	select {
	case o.send <- ev:
		return nil
	case <-o.done:
		return ErrObserverClosed
	default:
		o.Close()
		return ErrObserverSlow
	}
}

// Connected reports whether the connection is still open.
func (o *WSObserver) Connected() bool {
	return !o.closed.Load()
}

// Done is closed once the connection has ended.
func (o *WSObserver) Done() <-chan struct{} {
	return o.done
}

// Close ends the connection. Safe to call more than once.
func (o *WSObserver) Close() {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		close(o.done)
	})
}

// Wait blocks until both pumps have exited.
func (o *WSObserver) Wait() {
	o.wg.Wait()
}

// writePump owns all writes to the connection.
func (o *WSObserver) writePump() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.PingInterval)
	defer func() {
		ticker.Stop()
		o.conn.SetWriteDeadline(time.Now().Add(o.config.WriteTimeout))
		o.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		o.conn.Close()
	}()

	for {
		select {
		case <-o.done:
			return
		case ev := <-o.send:
			o.conn.SetWriteDeadline(time.Now().Add(o.config.WriteTimeout))
			if err := o.conn.WriteJSON(ev); err != nil {
				o.Close()
				return
			}
		case <-ticker.C:
			o.conn.SetWriteDeadline(time.Now().Add(o.config.WriteTimeout))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				o.Close()
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (o *WSObserver) readPump() {
	defer o.wg.Done()
	defer o.Close()

	o.conn.SetReadLimit(4096)
	o.conn.SetReadDeadline(time.Now().Add(o.config.ReadTimeout))
	o.conn.SetPongHandler(func(string) error {
		o.conn.SetReadDeadline(time.Now().Add(o.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var _ Observer = (*WSObserver)(nil)
