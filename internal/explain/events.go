package explain

import (
	"context"
	"time"
)

// Event is one element of the ordered response stream. Data is a
// self-contained JSON object - no event requires a prior one to interpret.
type Event struct {
	Name string
	Data map[string]any
}

// Event names, in the order they may appear in a stream
const (
	EventMeta     = "meta"
	EventEvidence = "evidence"
	EventDelta    = "delta"
	EventDone     = "done"
)

// EmitFunc receives stream events in order. Returning an error aborts the
// stream (the caller disconnected or the transport failed).
type EmitFunc func(Event) error

// Cached-replay pacing. Replay preserves the exact event shape of live
// generation so consumers cannot distinguish the two except by latency.
const (
	replayChunkRunes = 20
	replayChunkDelay = 20 * time.Millisecond
)

func deltaEvent(text string) Event {
	return Event{Name: EventDelta, Data: map[string]any{"text": text}}
}

func doneEvent() Event {
	return Event{Name: EventDone, Data: map[string]any{"status": "OK"}}
}

// replay streams previously generated text as fixed-size delta chunks with a
// small delay between chunks. Chunking is by rune so multi-byte text never
// splits mid-character.
func replay(ctx context.Context, text string, emit EmitFunc) error {
	runes := []rune(text)
	for start := 0; start < len(runes); start += replayChunkRunes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(replayChunkDelay):
		}

		end := start + replayChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		if err := emit(deltaEvent(string(runes[start:end]))); err != nil {
			return err
		}
	}
	return nil
}
