// Package voice runs the conversational turn loop for one connection.
//
// An Orchestrator owns a recognizer, a language model and a synthesizer for
// a single caller. It reacts to three event sources in one select loop:
//
//   - recognition events (final transcripts, utterance end)
//   - client events (audio, stop, context updates)
//   - results of the turn currently in flight
//
// A turn starts when the recognizer reports the end of an utterance and a
// transcript is pending. The reply is streamed from the model sentence by
// sentence; each sentence is synthesized and sent as one audio frame before
// the next one is read, so audio reaches the client in reply order.
//
// At most one turn runs at a time. An utterance end that arrives while a
// turn is in flight is dropped; its transcript stays pending for the next
// utterance end.
//
// # Usage
//
//	o, err := voice.New(voice.Deps{
//	    Recognizer:  rec,
//	    Model:       model,
//	    Synthesizer: synth,
//	    Ledger:      ledger,
//	    Sink:        conn,
//	}, voice.Options{Language: "es", VoiceID: "nova"})
//	if err != nil {
//	    return err
//	}
//	outcome := o.Run(ctx, clientEvents)
//
// # Latency Metrics
//
// Each turn is timed from the utterance end:
//
//	m := o.Metrics().Average()
//	fmt.Println(m.FormatLatency())
package voice
