package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/voxturn/pkg/protocol"
	"github.com/teslashibe/voxturn/pkg/voice"
)

// Lifecycle is a connection's position in CONNECTING → READY → ACTIVE →
// CLOSING → CLOSED. Setup failures jump straight to CLOSED.
type Lifecycle int32

const (
	LifecycleConnecting Lifecycle = iota
	LifecycleReady
	LifecycleActive
	LifecycleClosing
	LifecycleClosed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleConnecting:
		return "connecting"
	case LifecycleReady:
		return "ready"
	case LifecycleActive:
		return "active"
	case LifecycleClosing:
		return "closing"
	case LifecycleClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// admission carries what Admit resolved into the upgraded handler.
type admission struct {
	SessionID    string
	UserID       string
	Language     string
	SystemPrompt string
	StartedAt    time.Time
}

// Connection is one caller's socket. It serializes writes and tolerates
// writes after the socket closed.
type Connection struct {
	ID        string
	UserID    string
	Language  string
	Connected time.Time

	conn    *websocket.Conn
	logger  *slog.Logger
	metrics *voice.MetricsCollector
	stats   *stats

	writeMu sync.Mutex
	closed  atomic.Bool
	state   atomic.Int32

	cleanupOnce sync.Once
}

func newConnection(adm *admission, conn *websocket.Conn, logger *slog.Logger, st *stats) *Connection {
	return &Connection{
		ID:        adm.SessionID,
		UserID:    adm.UserID,
		Language:  adm.Language,
		Connected: adm.StartedAt,
		conn:      conn,
		logger:    logger,
		metrics:   voice.NewMetricsCollector(),
		stats:     st,
	}
}

// State returns the lifecycle state.
func (c *Connection) State() Lifecycle {
	return Lifecycle(c.state.Load())
}

func (c *Connection) setState(l Lifecycle) {
	prev := Lifecycle(c.state.Swap(int32(l)))
	if prev != l {
		c.logger.Debug("lifecycle", "from", prev, "to", l)
	}
}

// Send writes one frame. Writes after close are dropped and reported as
// ErrConnectionClosed.
func (c *Connection) Send(msg *protocol.Message) error {
	if c.closed.Load() {
		c.logger.Debug("dropping frame on closed connection", "type", msg.Type)
		return ErrConnectionClosed
	}

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.closed.Store(true)
		c.logger.Debug("write failed", "type", msg.Type, "error", err)
		return ErrConnectionClosed
	}
	c.stats.framesSent.Add(1)
	return nil
}

// sendError writes one error frame, ignoring failures.
func (c *Connection) sendError(message string) {
	if msg, err := protocol.NewErrorMessage(message); err == nil {
		_ = c.Send(msg)
	}
}

// readLoop decodes client frames into events until the socket fails. The
// events channel is closed on exit.
func (c *Connection) readLoop(ctx context.Context, events chan<- protocol.ClientEvent) {
	defer close(events)

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("read ended", "error", err)
			}
			c.closed.Store(true)
			return
		}
		c.stats.framesReceived.Add(1)

		ev, err := protocol.DecodeFrame(mt == websocket.BinaryMessage, data)
		if err != nil {
			c.logger.Warn("skipping malformed frame", "error", err)
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// close marks the socket closed and releases it.
func (c *Connection) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Closing the hijacked conn does not wake a ReadMessage already in
	// progress; an expired deadline does.
	_ = c.conn.SetReadDeadline(time.Now())

	if c.closed.Swap(true) {
		_ = c.conn.Close()
		return
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = c.conn.Close()
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Language        string    `json:"language"`
	State           string    `json:"state"`
	Connected       time.Time `json:"connected"`
	Turns           int       `json:"turns"`
	AvgFirstAudioMs int64     `json:"avg_first_audio_ms"`
}

// Info snapshots the connection for the sessions API.
func (c *Connection) Info() SessionInfo {
	avg := c.metrics.Average()
	return SessionInfo{
		ID:              c.ID,
		UserID:          c.UserID,
		Language:        c.Language,
		State:           c.State().String(),
		Connected:       c.Connected,
		Turns:           c.metrics.Turns(),
		AvgFirstAudioMs: avg.FirstAudio.Milliseconds(),
	}
}
