package llm

import "strings"

// SentenceAccumulator buffers streamed text and cuts it into sentences.
// A sentence ends at '.', '!' or '?' immediately followed by whitespace;
// whatever follows the last boundary is held until more text arrives or
// Flush is called. The zero value is ready to use.
type SentenceAccumulator struct {
	buf strings.Builder
}

// Add appends a delta and returns every sentence it completed, in order.
func (a *SentenceAccumulator) Add(delta string) []string {
	if delta == "" {
		return nil
	}
	a.buf.WriteString(delta)

	text := a.buf.String()
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if !isTerminator(text[i]) || !isSpace(text[i+1]) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if start > 0 {
		rest := text[start:]
		a.buf.Reset()
		a.buf.WriteString(rest)
	}
	return sentences
}

// Flush returns the trimmed remainder and empties the buffer.
func (a *SentenceAccumulator) Flush() string {
	rest := strings.TrimSpace(a.buf.String())
	a.buf.Reset()
	return rest
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
