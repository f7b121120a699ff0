package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smishguard/explaind/internal/auth"
	"github.com/smishguard/explaind/internal/explain"
	"github.com/smishguard/explaind/internal/llm"
	"github.com/smishguard/explaind/internal/model"
	"github.com/smishguard/explaind/internal/prompt"
	"github.com/smishguard/explaind/internal/store"
)

const testToken = "test-token"

type stubGateway struct {
	records map[string]*store.Record
	pingErr error
}

func (g *stubGateway) GetRecord(ctx context.Context, id string) (*store.Record, error) {
	rec, ok := g.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (g *stubGateway) SaveExplanation(ctx context.Context, id, summary, message string) error {
	rec, ok := g.records[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Summary = summary
	return nil
}

func (g *stubGateway) Ping(ctx context.Context) error { return g.pingErr }

type stubProvider struct {
	fragments []string
	err       error
}

func (p *stubProvider) Name() string                         { return "stub" }
func (p *stubProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *stubProvider) Stream(ctx context.Context, req llm.StreamRequest, onDelta func(string) error) error {
	if p.err != nil {
		return p.err
	}
	for _, f := range p.fragments {
		if err := onDelta(f); err != nil {
			return err
		}
	}
	return nil
}

func newTestServer(t *testing.T, gw *stubGateway, provider *stubProvider) *httptest.Server {
	t.Helper()
	svc := explain.New(gw, provider, prompt.Options{}, nil)
	verifier := auth.NewStaticVerifier(map[string]string{testToken: "tester"})
	srv := New(svc, gw, verifier, model.ServerConfig{RateRPS: 1000, RateBurst: 1000}, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, token, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type sseEvent struct {
	name string
	data map[string]any
}

func readSSE(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var (
		events  []sseEvent
		current string
	)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err != nil {
				t.Fatalf("Undecodable event data %q: %v", line, err)
			}
			events = append(events, sseEvent{name: current, data: data})
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Reading stream: %v", err)
	}
	return events
}

func sseText(events []sseEvent) string {
	var sb strings.Builder
	for _, e := range events {
		if e.name == "delta" {
			sb.WriteString(e.data["text"].(string))
		}
	}
	return sb.String()
}

func TestServer_Health_NoAuth(t *testing.T) {
	ts := newTestServer(t, &stubGateway{}, &stubProvider{})

	resp := doRequest(t, ts, http.MethodGet, "/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_ExplainResult_FixtureStream(t *testing.T) {
	ts := newTestServer(t, &stubGateway{}, &stubProvider{fragments: []string{"위험한 ", "사이트입니다."}})

	resp := doRequest(t, ts, http.MethodPost, "/v1/explain/"+store.FixtureID+"/stream", testToken, "{}")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Expected SSE content type, got %q", ct)
	}

	events := readSSE(t, resp.Body)
	if len(events) < 3 {
		t.Fatalf("Too few events: %d", len(events))
	}
	if events[0].name != "meta" || events[1].name != "evidence" {
		t.Errorf("Expected meta then evidence, got %s, %s", events[0].name, events[1].name)
	}
	if last := events[len(events)-1]; last.name != "done" || last.data["status"] != "OK" {
		t.Errorf("Expected done/OK terminator, got %s %v", last.name, last.data)
	}

	if events[0].data["risk_level"] != "HIGH" {
		t.Errorf("Expected fixture HIGH risk, got %v", events[0].data["risk_level"])
	}
	if v, ok := events[0].data["message"]; !ok || v != nil {
		t.Errorf("Expected null message in meta with no override, got %v", v)
	}
	evidence := events[1].data["evidence"].([]any)
	if len(evidence) != 7 {
		t.Errorf("Expected 7 fixture evidence items, got %d", len(evidence))
	}
	if got := sseText(events); got != "위험한 사이트입니다." {
		t.Errorf("Unexpected streamed text: %q", got)
	}
}

func TestServer_ExplainResult_NotFoundIsPlainHTTP(t *testing.T) {
	ts := newTestServer(t, &stubGateway{}, &stubProvider{})

	resp := doRequest(t, ts, http.MethodPost, "/v1/explain/nope/stream", testToken, "{}")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Pre-stream errors must be JSON, got %q", ct)
	}
}

func TestServer_ExplainResult_ProviderFailureMidStream(t *testing.T) {
	gw := &stubGateway{records: map[string]*store.Record{
		"r1": {ResultID: "r1", Details: map[string]any{"target_url": "https://evil.example"}},
	}}
	ts := newTestServer(t, gw, &stubProvider{err: errors.New("connection refused")})

	resp := doRequest(t, ts, http.MethodPost, "/v1/explain/r1/stream", testToken, "{}")
	// Generation fails after meta and evidence were already sent, so the
	// response is a committed stream that ends without a done event.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Stream already committed, expected 200, got %d", resp.StatusCode)
	}
	events := readSSE(t, resp.Body)
	for _, e := range events {
		if e.name == "done" {
			t.Error("Aborted stream must not carry a done event")
		}
	}
}

func TestServer_ExplainResult_EmptyBodyTolerated(t *testing.T) {
	ts := newTestServer(t, &stubGateway{}, &stubProvider{fragments: []string{"ok"}})

	resp := doRequest(t, ts, http.MethodPost, "/v1/explain/"+store.FixtureID+"/stream", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for empty body, got %d", resp.StatusCode)
	}
}

func TestServer_ExplainResult_MalformedBody(t *testing.T) {
	ts := newTestServer(t, &stubGateway{}, &stubProvider{})

	resp := doRequest(t, ts, http.MethodPost, "/v1/explain/r1/stream", testToken, "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestServer_AuthRejections(t *testing.T) {
	ts := newTestServer(t, &stubGateway{}, &stubProvider{})

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "unknown token", token: "wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, ts, http.MethodPost, "/v1/explain/uuid/stream", tt.token, "{}")
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestServer_RateLimit(t *testing.T) {
	gw := &stubGateway{}
	svc := explain.New(gw, &stubProvider{}, prompt.Options{}, nil)
	verifier := auth.NewStaticVerifier(map[string]string{testToken: "tester"})
	srv := New(svc, gw, verifier, model.ServerConfig{RateRPS: 0.001, RateBurst: 1}, nil)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	first := doRequest(t, ts, http.MethodGet, "/debug/db", testToken, "")
	if first.StatusCode != http.StatusOK {
		t.Fatalf("First request should pass, got %d", first.StatusCode)
	}
	second := doRequest(t, ts, http.MethodGet, "/debug/db", testToken, "")
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst, got %d", second.StatusCode)
	}
}

func TestServer_ExplainResults_Batch(t *testing.T) {
	gw := &stubGateway{records: map[string]*store.Record{
		"r1": {ResultID: "r1", Details: map[string]any{"target_url": "https://a.example"}},
	}}
	ts := newTestServer(t, gw, &stubProvider{fragments: []string{"combined"}})

	body := `{"result_ids": ["r1", "missing"]}`
	resp := doRequest(t, ts, http.MethodPost, "/v1/explain/stream", testToken, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	events := readSSE(t, resp.Body)
	items := events[0].data["items"].([]any)
	if len(items) != 1 {
		t.Errorf("Expected 1 resolved item, got %d", len(items))
	}

	// Nothing resolvable fails before any event is sent
	resp = doRequest(t, ts, http.MethodPost, "/v1/explain/stream", testToken, `{"result_ids": ["missing"]}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodPost, "/v1/explain/stream", testToken, `{"result_ids": []}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty list, got %d", resp.StatusCode)
	}
}

func TestServer_ExplainMessage(t *testing.T) {
	ts := newTestServer(t, &stubGateway{}, &stubProvider{fragments: []string{"설명"}})

	body := `{"message": "문자 내용", "safe_browsing_result": "SAFE"}`
	resp := doRequest(t, ts, http.MethodPost, "/v1/message/explain/stream", testToken, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	events := readSSE(t, resp.Body)
	if events[0].name != "meta" {
		t.Fatalf("Expected meta first, got %s", events[0].name)
	}
	if events[0].data["message"] != "문자 내용" || events[0].data["safe_browsing_result"] != "SAFE" {
		t.Errorf("Meta must echo the request: %v", events[0].data)
	}
	for _, e := range events {
		if e.name == "evidence" {
			t.Error("Message mode has no evidence event")
		}
	}
}

func TestServer_ExplainMessageLinks(t *testing.T) {
	ts := newTestServer(t, &stubGateway{}, &stubProvider{fragments: []string{"설명"}})

	body := `{"message": "문자", "links": [{"url": "https://a.example", "verdict": "MALWARE"}]}`
	resp := doRequest(t, ts, http.MethodPost, "/v1/message/links/explain/stream", testToken, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	events := readSSE(t, resp.Body)
	links := events[0].data["links"].([]any)
	if len(links) != 1 {
		t.Fatalf("Expected 1 link in meta, got %d", len(links))
	}
	link := links[0].(map[string]any)
	if link["url"] != "https://a.example" || link["verdict"] != "MALWARE" {
		t.Errorf("Unexpected link payload: %v", link)
	}

	resp = doRequest(t, ts, http.MethodPost, "/v1/message/links/explain/stream", testToken, `{"message": "문자", "links": []}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty links, got %d", resp.StatusCode)
	}
}

func TestServer_DebugEndpoints(t *testing.T) {
	gw := &stubGateway{records: map[string]*store.Record{
		"r1": {ResultID: "r1", Status: "DONE", Details: map[string]any{"target_url": "https://a.example"}},
	}}
	ts := newTestServer(t, gw, &stubProvider{})

	resp := doRequest(t, ts, http.MethodGet, "/debug/db", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet, "/debug/result/r1", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Undecodable body: %v", err)
	}
	if payload["result_id"] != "r1" || payload["status"] != "DONE" {
		t.Errorf("Unexpected debug payload: %v", payload)
	}

	resp = doRequest(t, ts, http.MethodGet, "/debug/result/missing", testToken, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	gw.pingErr = fmt.Errorf("no such table")
	resp = doRequest(t, ts, http.MethodGet, "/debug/db", testToken, "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500 on failed ping, got %d", resp.StatusCode)
	}
}
