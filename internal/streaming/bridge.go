package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"archie-backend/pkg/api"
)

// ToolResultPreviewLength caps how much of a tool result is echoed onto
// the wire; the raw result can be arbitrarily large.
const ToolResultPreviewLength = 500

// chunkQueueSize bounds how far the producer may run ahead of the writer.
const chunkQueueSize = 16

// Chunk is one unit of producer output. The variant is sealed: a producer
// yields text deltas, tool events, or the final sentinel, nothing else.
type Chunk interface {
	chunk()
}

type TextDelta struct {
	Text string
}

type ToolEvent struct {
	ToolName string
	Result   string
}

// Final is a no-op end-of-output sentinel some producers emit.
type Final struct{}

func (TextDelta) chunk() {}
func (ToolEvent) chunk() {}
func (Final) chunk()     {}

// Stream is a push iterator over producer chunks, in the order the
// producer yields them. A non-nil error terminates the stream.
type Stream func(yield func(Chunk, error) bool)

// PersistFunc durably records the accumulated answer. It runs after the
// producer is exhausted and before the Done frame is written.
type PersistFunc func(answer string) error

type queueItem struct {
	chunk Chunk
	err   error
}

// Run drains the stream into SSE frames on w: a Token frame per text
// delta, a ToolCall frame (with bounded preview) per tool event, then
// exactly one terminal frame. On normal exhaustion the accumulated text is
// persisted before Done goes out. On producer failure a single Error frame
// is written and nothing is persisted. Frames preserve producer order.
//
// The producer runs on its own goroutine behind a bounded queue and is
// cancelled when ctx ends, so a disconnected client stops generation.
func Run(ctx context.Context, w io.Writer, stream Stream, persist PersistFunc) error {
	queue := make(chan queueItem, chunkQueueSize)

	go func() {
		defer close(queue)
		stream(func(chunk Chunk, err error) bool {
			select {
			case queue <- queueItem{chunk: chunk, err: err}:
				return err == nil
			case <-ctx.Done():
				return false
			}
		})
	}()

	var answer []byte
	for item := range queue {
		if item.err != nil {
			slog.Error("producer failed mid-stream", "error", item.err)
			writeFrame(w, api.ErrorFrame{Error: item.err.Error()})
			return item.err
		}

		switch chunk := item.chunk.(type) {
		case TextDelta:
			answer = append(answer, chunk.Text...)
			if err := writeFrame(w, api.TokenFrame{Token: chunk.Text}); err != nil {
				return err
			}
		case ToolEvent:
			frame := api.ToolCallFrame{ToolCall: api.ToolCallPayload{
				ToolName:          chunk.ToolName,
				ToolResultPreview: truncate(chunk.Result, ToolResultPreviewLength),
			}}
			if err := writeFrame(w, frame); err != nil {
				return err
			}
		case Final:
			// end-of-output sentinel, nothing to emit
		}
	}

	if err := ctx.Err(); err != nil {
		// client is gone, no terminal frame can be delivered
		return err
	}

	if persist != nil {
		if err := persist(string(answer)); err != nil {
			slog.Error("failed to persist completed answer", "error", err)
			writeFrame(w, api.ErrorFrame{Error: "failed to save response"})
			return err
		}
	}

	return writeFrame(w, api.DoneFrame{Done: true})
}

// Collect drains the stream and returns the concatenated text, discarding
// tool events and the final sentinel. Used by the non-streaming ask path.
func Collect(stream Stream) (string, error) {
	var answer []byte
	var streamErr error
	stream(func(chunk Chunk, err error) bool {
		if err != nil {
			streamErr = err
			return false
		}
		if delta, ok := chunk.(TextDelta); ok {
			answer = append(answer, delta.Text...)
		}
		return true
	})
	return string(answer), streamErr
}

func writeFrame(w io.Writer, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
