package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/teslashibe/voxturn/pkg/cost"
	"github.com/teslashibe/voxturn/pkg/llm"
	"github.com/teslashibe/voxturn/pkg/protocol"
	"github.com/teslashibe/voxturn/pkg/stt"
	"github.com/teslashibe/voxturn/pkg/tts"
)

// Errors returned by the orchestrator.
var (
	ErrMissingDependency = errors.New("voice: missing dependency")
	ErrRecognizerClosed  = errors.New("voice: speech recognition stream closed")
)

// State of the turn state machine.
type State int32

const (
	StateIdle       State = iota // Nothing to process
	StatePending                 // Transcript waiting for an utterance end
	StateProcessing              // A turn is in flight
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Sink delivers frames to the client. Send is called from both the loop
// and the turn worker, so it must be safe for concurrent use.
type Sink interface {
	Send(msg *protocol.Message) error
}

// Deps are the per-connection collaborators. The orchestrator uses them
// exclusively for its lifetime.
type Deps struct {
	Recognizer  stt.Recognizer
	Model       llm.Provider
	Synthesizer tts.Provider
	Ledger      *cost.Ledger
	Sink        Sink
}

// Options tune one session.
type Options struct {
	SystemPrompt string
	Language     string
	VoiceID      string

	Logger  *slog.Logger
	Metrics *MetricsCollector
}

// Reason explains why Run returned.
type Reason string

const (
	ReasonStop             Reason = "stop"
	ReasonClientClosed     Reason = "client_closed"
	ReasonRecognizerClosed Reason = "recognizer_closed"
	ReasonCanceled         Reason = "canceled"
)

// Outcome is the result of Run.
type Outcome struct {
	Reason Reason
	Err    error // Set when the session ended on a failure
}

// turnResult is posted by the turn worker back to the loop.
type turnResult struct {
	result *llm.Result
	err    error
}

// Orchestrator drives the IDLE → PENDING → PROCESSING → IDLE cycle for one
// connection.
type Orchestrator struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	metrics *MetricsCollector

	history *History
	gate    turnGate
	state   atomic.Int32

	// Owned by the loop goroutine.
	pending      []string
	systemPrompt string

	turnDone chan turnResult
	workers  sync.WaitGroup
}

// New creates an orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Recognizer == nil:
		return nil, fmt.Errorf("%w: recognizer", ErrMissingDependency)
	case deps.Model == nil:
		return nil, fmt.Errorf("%w: model", ErrMissingDependency)
	case deps.Synthesizer == nil:
		return nil, fmt.Errorf("%w: synthesizer", ErrMissingDependency)
	case deps.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger", ErrMissingDependency)
	case deps.Sink == nil:
		return nil, fmt.Errorf("%w: sink", ErrMissingDependency)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	if opts.Language == "" {
		opts.Language = "en"
	}

	return &Orchestrator{
		deps:         deps,
		opts:         opts,
		logger:       logger.With("component", "voice.orchestrator"),
		metrics:      metrics,
		history:      &History{},
		gate:         newTurnGate(),
		systemPrompt: opts.SystemPrompt,
		turnDone:     make(chan turnResult, 1),
	}, nil
}

// State returns the current turn state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// History returns the conversation so far.
func (o *Orchestrator) History() *History {
	return o.history
}

// Metrics returns the latency collector.
func (o *Orchestrator) Metrics() *MetricsCollector {
	return o.metrics
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// Run processes events until the client stops, either stream closes, or ctx
// ends. A turn still in flight is cancelled before Run returns.
func (o *Orchestrator) Run(ctx context.Context, client <-chan protocol.ClientEvent) Outcome {
	turnCtx, cancelTurns := context.WithCancel(ctx)
	defer func() {
		cancelTurns()
		o.workers.Wait()
	}()

	events := o.deps.Recognizer.Events()

	for {
		select {
		case <-ctx.Done():
			return Outcome{Reason: ReasonCanceled, Err: ctx.Err()}

		case ev, ok := <-events:
			if !ok {
				o.sendError("speech recognition disconnected")
				return Outcome{Reason: ReasonRecognizerClosed, Err: ErrRecognizerClosed}
			}
			if ev.Type == stt.EventError {
				o.logger.Error("recognizer failed", "error", ev.Err)
				o.sendError("speech recognition failed: " + errString(ev.Err))
				return Outcome{Reason: ReasonRecognizerClosed, Err: ev.Err}
			}
			o.handleRecognition(turnCtx, ev)

		case ce, ok := <-client:
			if !ok {
				return Outcome{Reason: ReasonClientClosed}
			}
			if stop := o.handleClient(ce); stop {
				return Outcome{Reason: ReasonStop}
			}

		case res := <-o.turnDone:
			o.finishTurn(res)
		}
	}
}

func (o *Orchestrator) handleRecognition(ctx context.Context, ev stt.Event) {
	switch ev.Type {
	case stt.EventTranscript:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		o.pending = append(o.pending, text)
		if o.State() == StateIdle {
			o.setState(StatePending)
		}
		if msg, err := protocol.NewTranscriptMessage(text); err == nil {
			o.send(msg)
		}

	case stt.EventUtteranceEnd:
		o.startTurn(ctx)
	}
}

// handleClient reports whether the client asked to stop.
func (o *Orchestrator) handleClient(ev protocol.ClientEvent) bool {
	switch ev.Kind {
	case protocol.ClientAudio:
		o.deps.Recognizer.SendAudio(ev.Audio)
		o.metrics.IncrementAudioIn()
	case protocol.ClientUpdateContext:
		// An empty prompt is treated as a missing field, not a reset.
		if strings.TrimSpace(ev.SystemPrompt) == "" {
			o.logger.Warn("ignoring updateContext without systemPrompt")
			return false
		}
		o.systemPrompt = ev.SystemPrompt
		o.logger.Info("system prompt updated", "chars", utf8.RuneCountInString(ev.SystemPrompt))
	case protocol.ClientStop:
		return true
	}
	return false
}

func (o *Orchestrator) startTurn(ctx context.Context) {
	if len(o.pending) == 0 {
		return
	}
	if !o.gate.TryAcquire() {
		o.logger.Debug("utterance end dropped, turn in progress")
		return
	}

	text := strings.Join(o.pending, " ")
	o.pending = nil
	o.history.Append(llm.RoleUser, text)
	o.setState(StateProcessing)
	o.metrics.MarkUtteranceEnd()

	req := &llm.Request{
		SystemPrompt: o.systemPrompt,
		Messages:     o.history.Messages(),
	}

	o.logger.Debug("turn started", "user_chars", utf8.RuneCountInString(text), "history", len(req.Messages))

	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		res := o.runTurn(ctx, req)
		select {
		case o.turnDone <- res:
		case <-ctx.Done():
		}
	}()
}

// runTurn streams the reply and speaks each sentence before reading the
// next one.
func (o *Orchestrator) runTurn(ctx context.Context, req *llm.Request) turnResult {
	sentences := make(chan string)

	var res turnResult
	go func() {
		defer close(sentences)
		res.result, res.err = llm.Generate(ctx, o.deps.Model, req, sentences)
	}()

	for sentence := range sentences {
		o.metrics.MarkSentence()
		o.speak(ctx, sentence)
	}
	return res
}

func (o *Orchestrator) speak(ctx context.Context, sentence string) {
	audio, err := o.deps.Synthesizer.Synthesize(ctx, sentence, o.opts.VoiceID, o.opts.Language)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.metrics.MarkSynthesisError()
		o.logger.Warn("sentence synthesis failed", "error", err, "chars", utf8.RuneCountInString(sentence))
		o.sendError("speech synthesis failed: " + err.Error())
		return
	}

	o.deps.Ledger.AddTTSCharacters(utf8.RuneCountInString(sentence))

	msg, err := protocol.NewAudioMessage(audio.Audio)
	if err != nil {
		o.logger.Error("encode audio frame", "error", err)
		return
	}
	o.send(msg)
	o.metrics.MarkAudioOut()
}

func (o *Orchestrator) finishTurn(res turnResult) {
	defer func() {
		o.gate.Release()
		if len(o.pending) > 0 {
			o.setState(StatePending)
		} else {
			o.setState(StateIdle)
		}
	}()

	m := o.metrics.MarkResponseDone()

	if res.err != nil {
		o.logger.Warn("turn failed", "error", res.err, "metrics", m)
		o.sendError("language model failed: " + res.err.Error())
		return
	}

	r := res.result
	o.deps.Ledger.AddLLMUsage(r.Usage.PromptTokens, r.Usage.CompletionTokens)
	if r.Text != "" {
		o.history.Append(llm.RoleAssistant, r.Text)
	}

	o.logger.Info("turn complete",
		"tokens_in", r.Usage.PromptTokens,
		"tokens_out", r.Usage.CompletionTokens,
		"usage_estimated", r.Estimated,
		"metrics", m,
	)
}

func (o *Orchestrator) sendError(message string) {
	msg, err := protocol.NewErrorMessage(message)
	if err != nil {
		return
	}
	o.send(msg)
}

func (o *Orchestrator) send(msg *protocol.Message) {
	if err := o.deps.Sink.Send(msg); err != nil {
		o.logger.Debug("send failed", "type", msg.Type, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
