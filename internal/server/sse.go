package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// sseStream writes server-sent events over a ResponseWriter, flushing after
// each event so fragments reach the caller as they are produced. Headers are
// committed lazily on the first event, which lets a handler fail with a plain
// HTTP error for anything detected before streaming begins.
type sseStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	f       http.Flusher
	started bool
}

func newSSEStream(w http.ResponseWriter) *sseStream {
	var f http.Flusher
	if w != nil {
		if fl, ok := w.(http.Flusher); ok {
			f = fl
		}
	}
	return &sseStream{w: w, f: f}
}

// send writes one named event with a JSON data payload. Non-ASCII characters
// are left unescaped.
func (s *sseStream) send(event string, data any) error {
	if s == nil || s.w == nil {
		return errors.New("stream not ready")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return err
	}
	encoded := bytes.TrimRight(buf.Bytes(), "\n")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, encoded); err != nil {
		return err
	}
	if s.f != nil {
		s.f.Flush()
	}
	return nil
}

// Started reports whether any event has been written yet
func (s *sseStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
