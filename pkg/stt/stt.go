// Package stt streams microphone audio to a speech recognizer and delivers
// finalized transcripts and end-of-utterance signals.
//
// A Recognizer owns one persistent upstream connection. Interim hypotheses
// are never surfaced: callers see only final transcript segments and the
// utterance-end event the recognizer raises after a configured silence gap.
package stt

import "context"

// EventType classifies a recognizer event.
type EventType int

const (
	// EventTranscript carries one finalized transcript segment.
	EventTranscript EventType = iota

	// EventUtteranceEnd fires after the silence threshold elapses.
	EventUtteranceEnd

	// EventError reports an upstream failure. The event channel closes
	// right after.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventTranscript:
		return "transcript"
	case EventUtteranceEnd:
		return "utterance_end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered on Recognizer.Events.
type Event struct {
	Type EventType
	Text string // EventTranscript only
	Err  error  // EventError only
}

// Recognizer is a streaming speech-to-text session.
type Recognizer interface {
	// Connect opens the upstream stream.
	Connect(ctx context.Context) error

	// Events yields recognition events. It is closed when the upstream
	// stream ends for any reason.
	Events() <-chan Event

	// SendAudio forwards one audio chunk. Chunks sent while the stream is
	// not open are dropped.
	SendAudio(chunk []byte)

	// Disconnect flushes and closes the stream. Safe to call more than once.
	Disconnect() error

	// DurationSeconds is the wall-clock time the stream has been open.
	// Billing is approximated from it rather than from audio duration.
	DurationSeconds() float64

	// Cost prices DurationSeconds in dollars.
	Cost() float64

	// Name identifies the provider.
	Name() string
}

// PerMinute prices a duration in seconds at a per-minute rate.
func PerMinute(seconds, ratePerMinute float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return seconds / 60 * ratePerMinute
}
