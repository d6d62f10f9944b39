// Package cost tracks per-session usage counters and turns them into a
// per-stage cost breakdown when the session ends.
package cost

import (
	"sync"
)

// Counters are the raw usage figures of one session. They only grow.
type Counters struct {
	STTSeconds    float64
	LLMTokensIn   int
	LLMTokensOut  int
	TTSCharacters int
}

// LLMRates holds per-token prices for a language model.
type LLMRates struct {
	InputPerToken  float64
	OutputPerToken float64
}

// PerMillion converts a "per 1M units" list price into a per-unit price.
func PerMillion(price float64) float64 {
	return price / 1_000_000
}

// Summary is the finalized cost breakdown persisted with a session.
type Summary struct {
	Counters
	STTCost   float64
	LLMCost   float64
	TTSCost   float64
	TotalCost float64
}

// Ledger accumulates usage for one session. Safe for concurrent use: the
// turn worker records LLM and TTS usage while the connection reads it at
// cleanup.
type Ledger struct {
	mu    sync.Mutex
	c     Counters
	rates LLMRates
}

// NewLedger creates an empty ledger priced with the given LLM rates.
func NewLedger(rates LLMRates) *Ledger {
	return &Ledger{rates: rates}
}

// AddLLMUsage records tokens for one model call. Negative values are ignored.
func (l *Ledger) AddLLMUsage(in, out int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if in > 0 {
		l.c.LLMTokensIn += in
	}
	if out > 0 {
		l.c.LLMTokensOut += out
	}
}

// AddTTSCharacters records characters sent to synthesis.
func (l *Ledger) AddTTSCharacters(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.c.TTSCharacters += n
	l.mu.Unlock()
}

// ObserveSTTSeconds records the recognizer's running duration. The stored
// value never decreases.
func (l *Ledger) ObserveSTTSeconds(s float64) {
	l.mu.Lock()
	if s > l.c.STTSeconds {
		l.c.STTSeconds = s
	}
	l.mu.Unlock()
}

// Counters returns a snapshot of the counters.
func (l *Ledger) Counters() Counters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c
}

// LLMCost prices the recorded tokens.
func (l *Ledger) LLMCost() float64 {
	return l.price(l.Counters())
}

func (l *Ledger) price(c Counters) float64 {
	return float64(c.LLMTokensIn)*l.rates.InputPerToken + float64(c.LLMTokensOut)*l.rates.OutputPerToken
}

// Summarize produces the final breakdown. sttCost is the recognizer's own
// cost figure and ttsCost prices a character count. A nil ttsCost prices
// synthesis at zero.
func (l *Ledger) Summarize(sttCost float64, ttsCost func(chars int) float64) Summary {
	c := l.Counters()

	s := Summary{
		Counters: c,
		STTCost:  sttCost,
		LLMCost:  l.price(c),
	}
	if ttsCost != nil {
		s.TTSCost = ttsCost(c.TTSCharacters)
	}
	s.TotalCost = s.STTCost + s.LLMCost + s.TTSCost
	return s
}
