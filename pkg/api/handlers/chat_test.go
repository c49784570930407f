package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"greenstorm/pkg/api"
	"greenstorm/pkg/api/handlers"
	"greenstorm/pkg/assistant"
	"greenstorm/pkg/auth"
	"greenstorm/pkg/config"
	"greenstorm/pkg/models"
	"greenstorm/pkg/store"
	"greenstorm/pkg/stream"
)

// providerStub fakes the upstream assistants API: thread creation, message
// CRUD, and a scripted streamed run.
type providerStub struct {
	srv *httptest.Server

	mu       sync.Mutex
	messages []models.Message
	nextID   int
	// deltas emitted per streamed run, in order.
	deltas []string

	// hold, when non-nil, parks each streamed run until the channel is
	// closed; runStarted signals that a run has been parked.
	hold       chan struct{}
	runStarted chan struct{}
}

func newProviderStub(deltas []string) *providerStub {
	p := &providerStub{deltas: deltas}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

func newBlockingProviderStub(deltas []string) *providerStub {
	p := newProviderStub(deltas)
	p.hold = make(chan struct{})
	p.runStarted = make(chan struct{}, 4)
	return p
}

func (p *providerStub) allMessages() []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Message(nil), p.messages...)
}

func (p *providerStub) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/threads":
		fmt.Fprint(w, `{"id":"thread_test"}`)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
		var body struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.nextID++
		p.messages = append(p.messages, models.Message{
			ID:      fmt.Sprintf("msg_%d", p.nextID),
			Role:    body.Role,
			Content: body.Content,
		})
		fmt.Fprint(w, `{"id":"ok"}`)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
		out := `{"data":[`
		for i := len(p.messages) - 1; i >= 0; i-- {
			m := p.messages[i]
			if i < len(p.messages)-1 {
				out += ","
			}
			out += fmt.Sprintf(`{"id":%q,"role":%q,"content":[{"type":"text","text":{"value":%q}}]}`, m.ID, m.Role, m.Content)
		}
		fmt.Fprint(w, out+`]}`)
	case r.Method == http.MethodDelete:
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		for i, m := range p.messages {
			if m.ID == id {
				p.messages = append(p.messages[:i], p.messages[i+1:]...)
				break
			}
		}
		fmt.Fprint(w, `{"deleted":true}`)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/runs"):
		if p.hold != nil {
			// Release the lock while parked so concurrent message posts
			// still get through.
			p.mu.Unlock()
			p.runStarted <- struct{}{}
			<-p.hold
			p.mu.Lock()
		}
		w.Header().Set("Content-Type", "text/event-stream")
		var reply strings.Builder
		for _, d := range p.deltas {
			reply.WriteString(d)
			fmt.Fprintf(w, "event: thread.message.delta\ndata: {\"delta\":{\"content\":[{\"type\":\"text\",\"text\":{\"value\":%q}}]}}\n\n", d)
		}
		p.nextID++
		p.messages = append(p.messages, models.Message{
			ID:      fmt.Sprintf("msg_%d", p.nextID),
			Role:    models.RoleAssistant,
			Content: reply.String(),
		})
		fmt.Fprint(w, "event: thread.run.completed\ndata: {\"id\":\"run_1\"}\n\n")
	default:
		http.NotFound(w, r)
	}
}

type noopTools struct{}

func (noopTools) Dispatch(_ context.Context, _ string, call models.ToolCall) models.ToolOutput {
	return models.ToolOutput{ToolCallID: call.ID, Output: "{}"}
}

func setupServer(t *testing.T, provider *providerStub) *httptest.Server {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	client := assistant.NewClient(provider.srv.URL, "test-key", 5*time.Second)
	deps := &handlers.Deps{
		Client:      client,
		Dispatcher:  stream.NewDispatcher(client, noopTools{}),
		AssistantID: "asst_test",
		Sessions:    auth.NewSessions("", time.Hour, false),
	}
	sec := config.SecurityConfig{RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000}}
	srv := httptest.NewServer(api.Handler(deps, sec))
	t.Cleanup(srv.Close)
	return srv
}

// login performs /login and returns an http client carrying the session
// cookie.
func login(t *testing.T, srv *httptest.Server, name string) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	c := &http.Client{Jar: jar}

	body := bytes.NewReader([]byte(fmt.Sprintf(`{"first_name":%q}`, name)))
	resp, err := c.Post(srv.URL+"/login", "application/json", body)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	return c
}

// TestSendStreamsChunks verifies the whole send path: login issues a
// cookie, /assistant/send appends the user message and streams back the
// assistant reply terminated by the sentinel.
func TestSendStreamsChunks(t *testing.T) {
	provider := newProviderStub([]string{"Photosynthesis turns light into ", "chemical energy. ", "Plants do this in chloroplasts."})
	defer provider.srv.Close()
	srv := setupServer(t, provider)
	c := login(t, srv, "ana")

	resp, err := c.Post(srv.URL+"/assistant/send", "application/json",
		strings.NewReader(`{"message":"what is photosynthesis?"}`))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	raw := buf.String()
	if !strings.HasSuffix(raw, "data: [DONE]\n\n") {
		t.Fatalf("missing sentinel: %q", raw)
	}

	// Reassemble the text frames; they must concatenate to the full reply.
	var text strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if !strings.HasPrefix(line, "data: ") || strings.HasSuffix(line, "[DONE]") {
			continue
		}
		var frame struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line[len("data: "):]), &frame); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		text.WriteString(frame.Text)
	}
	want := "Photosynthesis turns light into chemical energy. Plants do this in chloroplasts."
	if text.String() != want {
		t.Fatalf("reassembled %q", text.String())
	}

	// The user message landed on the thread before the run.
	msgs := provider.allMessages()
	if len(msgs) < 2 || msgs[0].Content != "what is photosynthesis?" {
		t.Fatalf("provider messages %+v", msgs)
	}
}

// TestSendRejectsEmptyMessage verifies blank input never reaches the
// provider.
func TestSendRejectsEmptyMessage(t *testing.T) {
	provider := newProviderStub(nil)
	defer provider.srv.Close()
	srv := setupServer(t, provider)
	c := login(t, srv, "ana")

	resp, err := c.Post(srv.URL+"/assistant/send", "application/json",
		strings.NewReader(`{"message":"   "}`))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if msgs := provider.allMessages(); len(msgs) != 0 {
		t.Fatalf("message reached provider: %+v", msgs)
	}
}

// TestSendRequiresSession verifies the auth middleware guards the chat
// surface.
func TestSendRequiresSession(t *testing.T) {
	provider := newProviderStub(nil)
	defer provider.srv.Close()
	srv := setupServer(t, provider)

	resp, err := http.Post(srv.URL+"/assistant/send", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

// TestDeleteMessageAndHistory verifies delete_message removes the last
// exchange and /history reflects it oldest-first.
func TestDeleteMessageAndHistory(t *testing.T) {
	provider := newProviderStub([]string{"A reply."})
	defer provider.srv.Close()
	srv := setupServer(t, provider)
	c := login(t, srv, "ana")

	resp, err := c.Post(srv.URL+"/assistant/send", "application/json",
		strings.NewReader(`{"message":"first question"}`))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	_, _ = new(bytes.Buffer).ReadFrom(resp.Body)
	resp.Body.Close()

	resp, err = c.Get(srv.URL + "/history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var hist struct {
		History []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	resp.Body.Close()
	if len(hist.History) != 2 {
		t.Fatalf("history %+v", hist.History)
	}
	if hist.History[0].Role != "user" || hist.History[1].Role != "assistant" {
		t.Fatalf("history order %+v", hist.History)
	}

	resp, err = c.Post(srv.URL+"/assistant/delete_message", "application/json", nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	if msgs := provider.allMessages(); len(msgs) != 0 {
		t.Fatalf("exchange not removed: %+v", msgs)
	}

	// A second delete has nothing to remove.
	resp, err = c.Post(srv.URL+"/assistant/delete_message", "application/json", nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty delete status %d", resp.StatusCode)
	}
}

// TestStopResponseIdle verifies stop_response acknowledges even when no
// stream is active.
func TestStopResponseIdle(t *testing.T) {
	provider := newProviderStub(nil)
	defer provider.srv.Close()
	srv := setupServer(t, provider)
	c := login(t, srv, "ana")

	resp, err := c.Post(srv.URL+"/assistant/stop_response", "application/json", nil)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "Stopping assistant response." {
		t.Fatalf("status %q", out.Status)
	}
}

// TestSendConflictWhileStreaming verifies the per-conversation streaming
// slot: a second send while a run is in flight is refused with 409 and
// its message never reaches the thread.
func TestSendConflictWhileStreaming(t *testing.T) {
	provider := newBlockingProviderStub([]string{"Held reply."})
	defer provider.srv.Close()
	var once sync.Once
	unpark := func() { once.Do(func() { close(provider.hold) }) }
	defer unpark()
	srv := setupServer(t, provider)
	c := login(t, srv, "ana")

	firstDone := make(chan string, 1)
	go func() {
		resp, err := c.Post(srv.URL+"/assistant/send", "application/json",
			strings.NewReader(`{"message":"first"}`))
		if err != nil {
			firstDone <- "send error: " + err.Error()
			return
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		firstDone <- buf.String()
	}()

	// The parked run means the first send holds the slot.
	<-provider.runStarted

	resp, err := c.Post(srv.URL+"/assistant/send", "application/json",
		strings.NewReader(`{"message":"second"}`))
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second send status %d", resp.StatusCode)
	}
	for _, m := range provider.allMessages() {
		if m.Content == "second" {
			t.Fatalf("rejected message reached the thread: %+v", provider.allMessages())
		}
	}

	unpark()
	raw := <-firstDone
	if !strings.Contains(raw, "Held reply.") {
		t.Fatalf("first stream lost its reply: %q", raw)
	}
	if !strings.HasSuffix(raw, "data: [DONE]\n\n") {
		t.Fatalf("first stream missing sentinel: %q", raw)
	}
}

// TestStopResponseCancelsActiveStream verifies stop_response cancels the
// session's in-flight run: the holder's stream terminates with a
// cancellation frame followed by the sentinel.
func TestStopResponseCancelsActiveStream(t *testing.T) {
	provider := newBlockingProviderStub(nil)
	defer provider.srv.Close()
	var once sync.Once
	unpark := func() { once.Do(func() { close(provider.hold) }) }
	defer unpark()
	srv := setupServer(t, provider)
	c := login(t, srv, "ana")

	firstDone := make(chan string, 1)
	go func() {
		resp, err := c.Post(srv.URL+"/assistant/send", "application/json",
			strings.NewReader(`{"message":"a long question"}`))
		if err != nil {
			firstDone <- "send error: " + err.Error()
			return
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		firstDone <- buf.String()
	}()

	<-provider.runStarted

	resp, err := c.Post(srv.URL+"/assistant/stop_response", "application/json", nil)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "Stopping assistant response." {
		t.Fatalf("status %q", out.Status)
	}

	raw := <-firstDone
	if !strings.Contains(raw, `"status":"cancelled"`) {
		t.Fatalf("missing cancellation frame: %q", raw)
	}
	if !strings.HasSuffix(raw, "data: [DONE]\n\n") {
		t.Fatalf("missing sentinel after cancellation: %q", raw)
	}
}

// TestSettingsRoundTrip verifies settings validation and persistence.
func TestSettingsRoundTrip(t *testing.T) {
	provider := newProviderStub(nil)
	defer provider.srv.Close()
	srv := setupServer(t, provider)
	c := login(t, srv, "ana")

	resp, err := c.Post(srv.URL+"/assistant/settings", "application/json",
		strings.NewReader(`{"class_schedules":"ftp://bad/feed.ics","all_assignments":"https://ok/feed.ics"}`))
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad scheme accepted: %d", resp.StatusCode)
	}

	resp, err = c.Post(srv.URL+"/assistant/settings", "application/json",
		strings.NewReader(`{"class_schedules":"webcal://school.example/classes.ics","all_assignments":"https://school.example/work.ics"}`))
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d", resp.StatusCode)
	}

	resp, err = c.Get(srv.URL + "/assistant/settings")
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	defer resp.Body.Close()
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["class_schedules"] != "webcal://school.example/classes.ics" {
		t.Fatalf("settings %+v", got)
	}
}
