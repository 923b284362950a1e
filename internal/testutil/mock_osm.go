// Package testutil provides testing utilities for the OSM changeset client.
package testutil

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path prefix the mock serves the API under.
const APIPrefix = "/api/0.6"

// DefaultPageSize mirrors the OSM API cap on /changesets results.
const DefaultPageSize = 100

// MockChangeset describes one changeset served by MockOSM.
type MockChangeset struct {
	ID        string
	User      string
	CreatedAt time.Time
	Open      bool
	// Editor is the created_by tag; empty omits the tag.
	Editor string

	Creates  int
	Modifies int
	Deletes  int
}

// Changes returns the number of elements in the changeset's diff.
func (c MockChangeset) Changes() int {
	return c.Creates + c.Modifies + c.Deletes
}

// MockOSM is a configurable mock OSM API server for testing.
//
// /changesets filters by display_name and the time=start,end window (both
// bounds inclusive at one-second resolution) and returns at most PageSize
// entries, newest first. /changeset/{id}/download returns a diff with the
// configured number of create, modify and delete entries.
type MockOSM struct {
	server *httptest.Server
	mu     sync.RWMutex

	changesets map[string]MockChangeset
	statuses   map[string]int
	bodies     map[string]string
	pageSize   int
	nextID     int

	// Tracking
	requests        map[string]int
	lastUserAgent   string
	changesetWindow []string
}

// NewMockOSM creates a new mock OSM server.
func NewMockOSM() *MockOSM {
	mock := &MockOSM{
		changesets: make(map[string]MockChangeset),
		statuses:   make(map[string]int),
		bodies:     make(map[string]string),
		requests:   make(map[string]int),
		pageSize:   DefaultPageSize,
		nextID:     1000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+APIPrefix+"/changesets", mock.handleChangesets)
	mux.HandleFunc("GET "+APIPrefix+"/changeset/{id}/download", mock.handleDownload)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests[r.URL.Path]++
		mock.lastUserAgent = r.Header.Get("User-Agent")
		status, forced := mock.statuses[r.URL.Path]
		body, overridden := mock.bodies[r.URL.Path]
		mock.mu.Unlock()

		if forced {
			http.Error(w, http.StatusText(status), status)
			return
		}
		if overridden {
			w.Header().Set("Content-Type", "application/xml; charset=utf-8")
			w.Write([]byte(body))
			return
		}

		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the API base URL of the mock (including the /api/0.6 prefix).
func (m *MockOSM) URL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockOSM) Close() {
	m.server.Close()
}

// Client returns an HTTP client wired to the mock server.
func (m *MockOSM) Client() *http.Client {
	return m.server.Client()
}

// SetPageSize changes the page cap for /changesets.
func (m *MockOSM) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// AddChangeset registers a changeset. An empty ID gets one assigned.
func (m *MockOSM) AddChangeset(cs MockChangeset) MockChangeset {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cs.ID == "" {
		m.nextID++
		cs.ID = strconv.Itoa(m.nextID)
	}
	cs.CreatedAt = cs.CreatedAt.UTC().Truncate(time.Second)
	m.changesets[cs.ID] = cs
	return cs
}

// AddHistory registers n closed changesets for user, created step apart
// starting at start, each with one created element.
func (m *MockOSM) AddHistory(user, editor string, start time.Time, n int, step time.Duration) []MockChangeset {
	added := make([]MockChangeset, 0, n)
	for i := 0; i < n; i++ {
		added = append(added, m.AddChangeset(MockChangeset{
			User:      user,
			CreatedAt: start.Add(time.Duration(i) * step),
			Editor:    editor,
			Creates:   1,
		}))
	}
	return added
}

// SetStatus forces every request to path to fail with status.
func (m *MockOSM) SetStatus(path string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[path] = status
}

// SetBody makes every request to path return body with status 200.
func (m *MockOSM) SetBody(path, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[path] = body
}

// DiffPath returns the request path of changeset id's download.
func DiffPath(id string) string {
	return APIPrefix + "/changeset/" + id + "/download"
}

// ChangesetsPath is the request path of the changeset query.
const ChangesetsPath = APIPrefix + "/changesets"

// RequestCount returns the number of requests made to path.
func (m *MockOSM) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// TotalRequests returns the number of requests made to the server.
func (m *MockOSM) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

// ChangesetWindows returns the time parameters of all /changesets queries,
// in request order.
func (m *MockOSM) ChangesetWindows() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.changesetWindow...)
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockOSM) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

// Reset clears all tracking counters.
func (m *MockOSM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.changesetWindow = nil
	m.lastUserAgent = ""
}

func (m *MockOSM) handleChangesets(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("display_name")
	window := r.URL.Query().Get("time")

	m.mu.Lock()
	m.changesetWindow = append(m.changesetWindow, window)
	m.mu.Unlock()

	bounds := strings.Split(window, ",")
	if user == "" || len(bounds) != 2 {
		http.Error(w, "display_name and time=start,end are required", http.StatusBadRequest)
		return
	}
	start, err1 := time.Parse(time.RFC3339, bounds[0])
	end, err2 := time.Parse(time.RFC3339, bounds[1])
	if err1 != nil || err2 != nil || end.Before(start) {
		http.Error(w, "invalid time window", http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	known := false
	var matched []MockChangeset
	for _, cs := range m.changesets {
		if cs.User != user {
			continue
		}
		known = true
		if !cs.CreatedAt.Before(start) && !cs.CreatedAt.After(end) {
			matched = append(matched, cs)
		}
	}
	pageSize := m.pageSize
	m.mu.RUnlock()

	if !known {
		http.Error(w, "Object not found", http.StatusNotFound)
		return
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > pageSize {
		matched = matched[:pageSize]
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<osm version="0.6" generator="mock-osm">` + "\n")
	for _, cs := range matched {
		fmt.Fprintf(&buf, `  <changeset id="%s" user="%s" created_at="%s" open="%t"`,
			cs.ID, escape(cs.User), cs.CreatedAt.Format(time.RFC3339), cs.Open)
		if !cs.Open {
			fmt.Fprintf(&buf, ` closed_at="%s"`, cs.CreatedAt.Add(time.Minute).Format(time.RFC3339))
		}
		fmt.Fprintf(&buf, ` changes_count="%d">`+"\n", cs.Changes())
		if cs.Editor != "" {
			fmt.Fprintf(&buf, `    <tag k="created_by" v="%s"/>`+"\n", escape(cs.Editor))
		}
		buf.WriteString(`    <tag k="comment" v="mock edit"/>` + "\n")
		buf.WriteString("  </changeset>\n")
	}
	buf.WriteString("</osm>\n")

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write(buf.Bytes())
}

func (m *MockOSM) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	m.mu.RLock()
	cs, ok := m.changesets[id]
	m.mu.RUnlock()

	if !ok {
		http.Error(w, "Changeset not found", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<osmChange version="0.6" generator="mock-osm">` + "\n")
	writeAction(&buf, "create", "node", cs.ID, cs.Creates)
	writeAction(&buf, "modify", "way", cs.ID, cs.Modifies)
	writeAction(&buf, "delete", "node", cs.ID, cs.Deletes)
	buf.WriteString("</osmChange>\n")

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write(buf.Bytes())
}

func writeAction(buf *bytes.Buffer, action, element, changeset string, n int) {
	if n == 0 {
		return
	}
	fmt.Fprintf(buf, "  <%s>\n", action)
	for i := 0; i < n; i++ {
		fmt.Fprintf(buf, `    <%s id="%d" version="1" changeset="%s"/>`+"\n", element, i+1, changeset)
	}
	fmt.Fprintf(buf, "  </%s>\n", action)
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
