package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventBufferSize = 32
	closeWriteWait  = 2 * time.Second
)

var (
	keepAliveFrame   = []byte(`{"type":"KeepAlive"}`)
	closeStreamFrame = []byte(`{"type":"CloseStream"}`)
)

// Deepgram is a streaming recognizer backed by Deepgram's live endpoint.
type Deepgram struct {
	config *Config
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	events chan Event
	done   chan struct{}

	open      atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once

	timeMu    sync.Mutex
	startedAt time.Time
	stoppedAt time.Time
}

// NewDeepgram creates a Deepgram recognizer. Connect must be called before
// audio is sent.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Deepgram{
		config: cfg,
		logger: logger.With("component", "stt.deepgram"),
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}, nil
}

// Connect dials the live endpoint and starts the read and keepalive loops.
func (d *Deepgram) Connect(ctx context.Context) error {
	if d.conn != nil {
		return ErrAlreadyConnected
	}

	endpoint, err := d.endpoint()
	if err != nil {
		return &ConnectionError{Provider: d.Name(), Cause: err}
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.config.APIKey)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.config.Timeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		connErr := &ConnectionError{Provider: d.Name(), Cause: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
			if resp.Body != nil {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				resp.Body.Close()
				connErr.Body = string(body)
			}
		}
		return connErr
	}

	d.conn = conn
	d.timeMu.Lock()
	d.startedAt = time.Now()
	d.timeMu.Unlock()
	d.open.Store(true)

	d.logger.Info("connected",
		"model", d.config.Model,
		"language", d.config.Language,
		"utterance_end_ms", d.config.UtteranceEndMs,
	)

	go d.readLoop()
	if d.config.KeepAliveInterval > 0 {
		go d.keepAlive()
	}

	return nil
}

func (d *Deepgram) endpoint() (string, error) {
	u, err := url.Parse(d.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("model", d.config.Model)
	q.Set("language", d.config.Language)
	q.Set("encoding", d.config.Encoding)
	q.Set("sample_rate", strconv.Itoa(d.config.SampleRate))
	q.Set("channels", strconv.Itoa(d.config.Channels))
	// Utterance-end detection only works with interim results enabled.
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", strconv.Itoa(d.config.UtteranceEndMs))
	q.Set("vad_events", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Events implements Recognizer.
func (d *Deepgram) Events() <-chan Event {
	return d.events
}

// SendAudio implements Recognizer.
func (d *Deepgram) SendAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if !d.open.Load() {
		d.logger.Warn("dropping audio, stream not open", "bytes", len(chunk))
		return
	}

	d.writeMu.Lock()
	err := d.conn.WriteMessage(websocket.BinaryMessage, chunk)
	d.writeMu.Unlock()

	if err != nil {
		d.logger.Warn("audio write failed", "error", err)
	}
}

// Disconnect asks upstream to flush, then closes the socket.
func (d *Deepgram) Disconnect() error {
	var err error
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.done)

		if d.conn == nil {
			return
		}

		if d.open.Load() {
			d.writeMu.Lock()
			if werr := d.conn.WriteMessage(websocket.TextMessage, closeStreamFrame); werr != nil {
				d.logger.Debug("close stream write failed", "error", werr)
			}
			_ = d.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeWriteWait),
			)
			d.writeMu.Unlock()
		}

		d.open.Store(false)
		d.markStopped()
		err = d.conn.Close()

		d.logger.Info("disconnected", "duration_s", d.DurationSeconds())
	})
	return err
}

// DurationSeconds implements Recognizer.
func (d *Deepgram) DurationSeconds() float64 {
	d.timeMu.Lock()
	defer d.timeMu.Unlock()

	if d.startedAt.IsZero() {
		return 0
	}
	end := d.stoppedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(d.startedAt).Seconds()
}

// Cost implements Recognizer.
func (d *Deepgram) Cost() float64 {
	return PerMinute(d.DurationSeconds(), d.config.PricePerMinute)
}

// Name implements Recognizer.
func (d *Deepgram) Name() string {
	return "deepgram"
}

func (d *Deepgram) markStopped() {
	d.timeMu.Lock()
	if d.stoppedAt.IsZero() && !d.startedAt.IsZero() {
		d.stoppedAt = time.Now()
	}
	d.timeMu.Unlock()
}

// liveMessage covers the server message types we care about.
type liveMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (d *Deepgram) readLoop() {
	defer close(d.events)
	defer d.markStopped()

	for {
		msgType, data, err := d.conn.ReadMessage()
		if err != nil {
			d.open.Store(false)
			if d.closing.Load() {
				return
			}
			d.logger.Warn("upstream closed", "error", err)
			d.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %v", ErrConnectionClosed, err)})
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg liveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			d.logger.Debug("skipping malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case "Results":
			if !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
				continue
			}
			text := msg.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			d.emit(Event{Type: EventTranscript, Text: text})
		case "UtteranceEnd":
			d.emit(Event{Type: EventUtteranceEnd})
		case "Metadata", "SpeechStarted":
		default:
			d.logger.Debug("ignoring message", "type", msg.Type)
		}
	}
}

func (d *Deepgram) emit(ev Event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

func (d *Deepgram) keepAlive() {
	ticker := time.NewTicker(d.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			if !d.open.Load() {
				return
			}
			d.writeMu.Lock()
			err := d.conn.WriteMessage(websocket.TextMessage, keepAliveFrame)
			d.writeMu.Unlock()
			if err != nil {
				d.logger.Debug("keepalive failed", "error", err)
				return
			}
		}
	}
}

// Verify Deepgram implements Recognizer at compile time.
var _ Recognizer = (*Deepgram)(nil)
