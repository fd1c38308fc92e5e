package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Reply is one scripted response from the fake backend.
type Reply struct {
	Code int
	Body string
}

// StatusJSON builds a 200 reply with the given JSON body.
func StatusJSON(body string) Reply {
	return Reply{Code: http.StatusOK, Body: body}
}

// Backend is a scripted stand-in for the case-management backend. Status polls
// consume the scripted replies for a task in order; the last one repeats.
type Backend struct {
	Server *httptest.Server

	mu          sync.Mutex
	scripts     map[string][]Reply
	hits        map[string]int
	submissions map[string]Reply
	requests    []*http.Request
	bodies      []string
}

// NewBackend starts a fake backend and registers cleanup.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		scripts:     make(map[string][]Reply),
		hits:        make(map[string]int),
		submissions: make(map[string]Reply),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the backend base URL.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Script queues replies for a task id.
func (b *Backend) Script(taskID string, replies ...Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[taskID] = append(b.scripts[taskID], replies...)
}

// OnSubmit sets the reply for a submission path such as "/evidence/analyze".
func (b *Backend) OnSubmit(path string, reply Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions[path] = reply
}

// Hits returns how many status polls a task received.
func (b *Backend) Hits(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[taskID]
}

// LastRequest returns the most recent request and its body.
func (b *Backend) LastRequest() (*http.Request, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return nil, ""
	}
	return b.requests[len(b.requests)-1], b.bodies[len(b.bodies)-1]
}

// LastRequestTo returns the most recent request for path and its body.
func (b *Backend) LastRequestTo(path string) (*http.Request, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].URL.Path == path {
			return b.requests[i], b.bodies[i]
		}
	}
	return nil, ""
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	var body strings.Builder
	if r.Body != nil {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
			body.Write(raw)
		}
	}

	b.mu.Lock()
	b.requests = append(b.requests, r)
	b.bodies = append(b.bodies, body.String())

	var reply Reply
	if id, ok := strings.CutPrefix(r.URL.Path, "/tasks/status/"); ok && r.Method == http.MethodGet {
		b.hits[id]++
		script := b.scripts[id]
		switch len(script) {
		case 0:
			reply = Reply{Code: http.StatusNotFound, Body: `{"detail":"not found"}`}
		case 1:
			reply = script[0]
		default:
			reply = script[0]
			b.scripts[id] = script[1:]
		}
	} else if sub, ok := b.submissions[r.URL.Path]; ok && r.Method == http.MethodPost {
		reply = sub
	} else {
		reply = Reply{Code: http.StatusNotFound, Body: `{"detail":"not found"}`}
	}
	b.mu.Unlock()

	code := reply.Code
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(reply.Body))
}
