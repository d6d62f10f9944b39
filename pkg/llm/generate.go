package llm

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Result is the outcome of one completed call.
type Result struct {
	Text      string
	Usage     Usage
	Estimated bool // Usage was approximated from character counts
}

// Generate runs one streaming call and sends each completed sentence to out
// in order. The trailing fragment, if any, is sent after the stream ends.
// out is never closed by Generate.
//
// On error, sentences already sent stay sent and no Result is returned.
func Generate(ctx context.Context, p Provider, req *Request, out chan<- string) (*Result, error) {
	stream, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	emit := func(s string) error {
		select {
		case out <- s:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var (
		acc   SentenceAccumulator
		full  strings.Builder
		usage *Usage
	)

	for {
		chunk, err := stream.Recv()
		if err != nil {
			return nil, err
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Delta != "" {
			full.WriteString(chunk.Delta)
			for _, s := range acc.Add(chunk.Delta) {
				if err := emit(s); err != nil {
					return nil, err
				}
			}
		}
		if chunk.Done {
			break
		}
	}

	if rest := acc.Flush(); rest != "" {
		if err := emit(rest); err != nil {
			return nil, err
		}
	}

	res := &Result{Text: strings.TrimSpace(full.String())}
	if usage != nil {
		res.Usage = *usage
	} else {
		res.Usage = EstimateUsage(req, res.Text)
		res.Estimated = true
	}
	return res, nil
}

// EstimateUsage approximates token counts as one token per four characters
// of prompt (system prompt plus all messages) and of reply.
func EstimateUsage(req *Request, reply string) Usage {
	promptChars := utf8.RuneCountInString(req.SystemPrompt)
	for _, m := range req.Messages {
		promptChars += utf8.RuneCountInString(m.Content)
	}
	return Usage{
		PromptTokens:     charsToTokens(promptChars),
		CompletionTokens: charsToTokens(utf8.RuneCountInString(reply)),
	}
}

func charsToTokens(chars int) int {
	return (chars + 3) / 4
}
