package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeArithmetic(t *testing.T) {
	l := NewLedger(LLMRates{
		InputPerToken:  PerMillion(0.15),
		OutputPerToken: PerMillion(0.60),
	})

	l.ObserveSTTSeconds(120)
	l.AddLLMUsage(1000, 500)
	l.AddTTSCharacters(200)

	sttCost := 120.0 / 60 * 0.0043
	ttsPerChar := PerMillion(0.05)

	s := l.Summarize(sttCost, func(chars int) float64 { return float64(chars) * ttsPerChar })

	assert.InDelta(t, 0.0086, s.STTCost, 1e-12)
	assert.InDelta(t, 0.00045, s.LLMCost, 1e-12)
	assert.InDelta(t, 0.00001, s.TTSCost, 1e-12)
	assert.InDelta(t, s.STTCost+s.LLMCost+s.TTSCost, s.TotalCost, 1e-15)

	assert.Equal(t, 120.0, s.STTSeconds)
	assert.Equal(t, 1000, s.LLMTokensIn)
	assert.Equal(t, 500, s.LLMTokensOut)
	assert.Equal(t, 200, s.TTSCharacters)
}

func TestCountersNeverDecrease(t *testing.T) {
	l := NewLedger(LLMRates{})

	l.ObserveSTTSeconds(10)
	l.ObserveSTTSeconds(4)
	l.AddLLMUsage(-5, -5)
	l.AddTTSCharacters(-1)

	c := l.Counters()
	assert.Equal(t, 10.0, c.STTSeconds)
	assert.Zero(t, c.LLMTokensIn)
	assert.Zero(t, c.LLMTokensOut)
	assert.Zero(t, c.TTSCharacters)
}

func TestSummarizeNilTTSCost(t *testing.T) {
	l := NewLedger(LLMRates{InputPerToken: 1})
	l.AddLLMUsage(3, 0)

	s := l.Summarize(0.5, nil)
	assert.Equal(t, 3.0, s.LLMCost)
	assert.Zero(t, s.TTSCost)
	assert.Equal(t, 3.5, s.TotalCost)
	assert.Equal(t, 3.0, l.LLMCost())
}

func TestLedgerConcurrent(t *testing.T) {
	l := NewLedger(LLMRates{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.AddLLMUsage(2, 1)
			l.AddTTSCharacters(3)
		}()
	}
	wg.Wait()

	c := l.Counters()
	assert.Equal(t, 100, c.LLMTokensIn)
	assert.Equal(t, 50, c.LLMTokensOut)
	assert.Equal(t, 150, c.TTSCharacters)
}
