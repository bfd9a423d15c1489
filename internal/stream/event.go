// Package stream defines analysis progress events and their wire encodings.
package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/ppiankov/veracity/internal/model"
)

// Type of a progress event
type Type string

const (
	Status    Type = "status"
	Reasoning Type = "reasoning"
	Search    Type = "search"
	Error     Type = "error"
	Verdict   Type = "verdict"
	Done      Type = "done"
)

// Event is one progress record of an analysis
type Event struct {
	Type     Type            `json:"type"`
	Content  string          `json:"content,omitempty"`
	Turn     int             `json:"turn,omitempty"`
	Query    string          `json:"query,omitempty"`
	Analysis *model.Analysis `json:"analysis,omitempty"`
}

// StatusEvent is shorthand for a status message
func StatusEvent(msg string) Event { return Event{Type: Status, Content: msg} }

// ErrorEvent is shorthand for an error message
func ErrorEvent(err error) Event { return Event{Type: Error, Content: err.Error()} }

// DoneEvent is the terminal marker
func DoneEvent() Event { return Event{Type: Done} }

// Terminal reports whether the event ends a stream
func (e Event) Terminal() bool { return e.Type == Done }

// WriteNDJSON writes one JSON object per line, flushing after each event so a
// slow reader sees progress as it happens. It stops at the first write error.
func WriteNDJSON(w io.Writer, events iter.Seq[Event]) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := flush(bw, w); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSSE writes events as Server-Sent Events data lines. The done event is
// rendered as the "[DONE]" sentinel.
func WriteSSE(w io.Writer, events iter.Seq[Event]) error {
	bw := bufio.NewWriter(w)
	for ev := range events {
		if ev.Terminal() {
			if _, err := bw.WriteString("data: [DONE]\n\n"); err != nil {
				return err
			}
		} else {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			if _, err := fmt.Fprintf(bw, "data: %s\n\n", data); err != nil {
				return err
			}
		}
		if err := flush(bw, w); err != nil {
			return err
		}
	}
	return bw.Flush()
}

type flusher interface{ Flush() }

func flush(bw *bufio.Writer, w io.Writer) error {
	if err := bw.Flush(); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return nil
}
