package petsapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockServer provides a fake pets API for testing. Failure injection is
// keyed by "METHOD /path" (e.g. "PATCH /pets/p3"): a status override makes
// the endpoint reject the request, a dropped connection simulates a network
// fault mid-request.
type MockServer struct {
	*httptest.Server

	mu             sync.Mutex
	calls          []string
	createBodies   []map[string]interface{}
	updateBodies   map[string][]map[string]interface{}
	statusUpdates  map[string][]string
	statusOverride map[string]int
	dropConn       map[string]bool
	delay          time.Duration
	uploadNames    []string
	uploadQueue    []string
	uploadCount    int
}

// NewMockServer creates and starts a mock pets API server.
func NewMockServer() *MockServer {
	m := &MockServer{
		updateBodies:   make(map[string][]map[string]interface{}),
		statusUpdates:  make(map[string][]string),
		statusOverride: make(map[string]int),
		dropConn:       make(map[string]bool),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	m.mu.Lock()
	m.calls = append(m.calls, key)
	delay := m.delay
	drop := m.dropConn[key]
	code, override := m.statusOverride[key]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if drop {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		panic("mock server: response writer does not support hijacking")
	}

	if override {
		http.Error(w, http.StatusText(code), code)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/pets":
		m.handleCreate(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/pets/upload-image":
		m.handleUpload(w, r)
	case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/status"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/pets/"), "/status")
		m.handleStatus(w, r, id)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/pets/"):
		id := strings.TrimPrefix(r.URL.Path, "/pets/")
		m.handleUpdate(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (m *MockServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.createBodies = append(m.createBodies, body)
	m.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (m *MockServer) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.updateBodies[id] = append(m.updateBodies[id], body)
	m.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (m *MockServer) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.statusUpdates[id] = append(m.statusUpdates[id], body.Status)
	m.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (m *MockServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "missing image field", http.StatusBadRequest)
		return
	}
	defer file.Close()
	io.Copy(io.Discard, file)

	m.mu.Lock()
	m.uploadNames = append(m.uploadNames, header.Filename)
	m.uploadCount++
	url := fmt.Sprintf("/uploads/upload-%d.png", m.uploadCount)
	if len(m.uploadQueue) > 0 {
		url = m.uploadQueue[0]
		m.uploadQueue = m.uploadQueue[1:]
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": url})
}

// RespondWithStatus makes the endpoint identified by "METHOD /path" respond
// with the given HTTP status code.
func (m *MockServer) RespondWithStatus(key string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusOverride[key] = code
}

// DropConnection makes the endpoint identified by "METHOD /path" close the
// connection without responding, so the client observes a transport error.
func (m *MockServer) DropConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropConn[key] = true
}

// SetDelay makes every request sleep for d before being handled.
func (m *MockServer) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// QueueUploadURL queues a durable reference to be returned by the next
// upload call instead of the generated default.
func (m *MockServer) QueueUploadURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadQueue = append(m.uploadQueue, url)
}

// Calls returns every received request as "METHOD /path" in arrival order.
func (m *MockServer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]string, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CreateBodies returns the decoded bodies of received create requests.
func (m *MockServer) CreateBodies() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	bodies := make([]map[string]interface{}, len(m.createBodies))
	copy(bodies, m.createBodies)
	return bodies
}

// UpdateBodies returns the decoded bodies of field-edit requests for id.
func (m *MockServer) UpdateBodies(id string) []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	bodies := make([]map[string]interface{}, len(m.updateBodies[id]))
	copy(bodies, m.updateBodies[id])
	return bodies
}

// StatusUpdates returns the status values received for id in arrival order.
func (m *MockServer) StatusUpdates(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make([]string, len(m.statusUpdates[id]))
	copy(statuses, m.statusUpdates[id])
	return statuses
}

// UploadedNames returns the filenames of received uploads in arrival order.
func (m *MockServer) UploadedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.uploadNames))
	copy(names, m.uploadNames)
	return names
}
