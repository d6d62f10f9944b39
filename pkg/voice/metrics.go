package voice

import (
	"log/slog"
	"sync"
	"time"
)

// maxHistory bounds the turns kept for averaging.
const maxHistory = 100

// Metrics tracks latency at each stage of one turn.
// All durations are measured from the utterance end.
type Metrics struct {
	UtteranceEndTime  time.Time // Recognizer reported end of speech
	FirstSentenceTime time.Time // Model produced its first sentence
	FirstAudioTime    time.Time // First audio frame was sent
	ResponseDoneTime  time.Time // Turn finished

	FirstSentence time.Duration
	FirstAudio    time.Duration
	TotalLatency  time.Duration

	Sentences       int
	AudioFramesOut  int
	SynthesisErrors int
	AudioChunksIn   int // Chunks forwarded to the recognizer during the turn
}

// MetricsCollector collects per-turn latency marks. It is goroutine-safe:
// the loop and the turn worker both record into it.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics
	turns   int
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, maxHistory),
	}
}

// MarkUtteranceEnd starts a new turn. It is the reference point for all
// latency measurements.
func (m *MetricsCollector) MarkUtteranceEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{UtteranceEndTime: time.Now()}
}

// MarkSentence records one sentence produced by the model.
func (m *MetricsCollector) MarkSentence() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Sentences++
	if m.current.FirstSentenceTime.IsZero() {
		m.current.FirstSentenceTime = time.Now()
		m.current.FirstSentence = m.since(m.current.FirstSentenceTime)
	}
}

// MarkAudioOut records one audio frame sent to the client.
func (m *MetricsCollector) MarkAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioFramesOut++
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		m.current.FirstAudio = m.since(m.current.FirstAudioTime)
	}
}

// MarkSynthesisError counts a sentence that failed to synthesize.
func (m *MetricsCollector) MarkSynthesisError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.SynthesisErrors++
}

// IncrementAudioIn counts an audio chunk received from the client.
func (m *MetricsCollector) IncrementAudioIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksIn++
}

// MarkResponseDone closes the turn, archives it and returns its metrics.
func (m *MetricsCollector) MarkResponseDone() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current.ResponseDoneTime = time.Now()
	m.current.TotalLatency = m.since(m.current.ResponseDoneTime)

	m.turns++
	m.history = append(m.history, m.current)
	if len(m.history) > maxHistory {
		m.history = m.history[1:]
	}
	return m.current
}

// since must be called with the mutex held.
func (m *MetricsCollector) since(t time.Time) time.Duration {
	if m.current.UtteranceEndTime.IsZero() {
		return 0
	}
	return t.Sub(m.current.UtteranceEndTime)
}

// Current returns the in-progress turn's metrics.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns the number of completed turns.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turns
}

// Average returns average latencies over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	for _, h := range m.history {
		avg.FirstSentence += h.FirstSentence
		avg.FirstAudio += h.FirstAudio
		avg.TotalLatency += h.TotalLatency
	}

	n := time.Duration(len(m.history))
	avg.FirstSentence /= n
	avg.FirstAudio /= n
	avg.TotalLatency /= n

	return avg
}

// FormatLatency returns a formatted string of the latencies.
func (m Metrics) FormatLatency() string {
	return formatDuration(m.FirstSentence) + " LLM | " +
		formatDuration(m.FirstAudio) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

// LogValue implements slog.LogValuer.
func (m Metrics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("first_sentence_ms", m.FirstSentence.Milliseconds()),
		slog.Int64("first_audio_ms", m.FirstAudio.Milliseconds()),
		slog.Int64("total_ms", m.TotalLatency.Milliseconds()),
		slog.Int("sentences", m.Sentences),
		slog.Int("audio_frames", m.AudioFramesOut),
		slog.Int("synthesis_errors", m.SynthesisErrors),
	)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
