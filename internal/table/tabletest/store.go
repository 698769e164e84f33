// Package tabletest provides an in-memory table API for tests.
package tabletest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"record-mcp/internal/table"
)

// Call is one request seen by the Store.
type Call struct {
	Method   string
	Path     string
	RawQuery string
	Body     string
	Auth     string
}

// Store is a tiny table API backed by maps. Records get a sys_id and, on
// creation, a number of the form XXX00100NN derived from the table name.
type Store struct {
	*httptest.Server

	mu     sync.Mutex
	tables map[string][]map[string]any
	calls  []Call
	seq    int
}

// NewStore starts a Store; callers must Close it.
func NewStore() *Store {
	s := &Store{tables: make(map[string][]map[string]any)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Calls returns a copy of every request received so far.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Seed inserts a record directly and returns its sys_id.
func (s *Store) Seed(tbl string, rec map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(tbl, rec)
}

func (s *Store) insertLocked(tbl string, rec map[string]any) string {
	s.seq++
	out := make(map[string]any, len(rec)+2)
	for k, v := range rec {
		out[k] = v
	}
	if _, ok := out["sys_id"]; !ok {
		out["sys_id"] = fmt.Sprintf("sys%04d", s.seq)
	}
	if _, ok := out["number"]; !ok {
		prefix := strings.ToUpper(tbl)
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
		out["number"] = fmt.Sprintf("%s00100%02d", prefix, s.seq)
	}
	s.tables[tbl] = append(s.tables[tbl], out)
	return out["sys_id"].(string)
}

func (s *Store) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Body:     string(body),
		Auth:     r.Header.Get("Authorization"),
	})

	rest := strings.TrimPrefix(r.URL.Path, table.BasePath+"/")
	tbl, id, _ := strings.Cut(rest, "/")

	switch {
	case r.Method == http.MethodPost && id == "":
		var rec map[string]any
		if err := json.Unmarshal(body, &rec); err != nil {
			reply(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "invalid body"}})
			return
		}
		sysID := s.insertLocked(tbl, rec)
		reply(w, http.StatusCreated, map[string]any{"result": s.findLocked(tbl, sysID)})
	case r.Method == http.MethodGet && id == "":
		rows := s.tables[tbl]
		if n, err := strconv.Atoi(r.URL.Query().Get("sysparm_limit")); err == nil && n < len(rows) {
			rows = rows[:n]
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		reply(w, http.StatusOK, map[string]any{"result": rows})
	case r.Method == http.MethodGet:
		if rec := s.findLocked(tbl, id); rec != nil {
			reply(w, http.StatusOK, map[string]any{"result": rec})
			return
		}
		notFound(w)
	case r.Method == http.MethodPatch:
		rec := s.findLocked(tbl, id)
		if rec == nil {
			notFound(w)
			return
		}
		var fields map[string]any
		_ = json.Unmarshal(body, &fields)
		for k, v := range fields {
			rec[k] = v
		}
		reply(w, http.StatusOK, map[string]any{"result": rec})
	case r.Method == http.MethodDelete:
		rows := s.tables[tbl]
		for i, rec := range rows {
			if rec["sys_id"] == id {
				s.tables[tbl] = append(rows[:i], rows[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		notFound(w)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Store) findLocked(tbl, id string) map[string]any {
	for _, rec := range s.tables[tbl] {
		if rec["sys_id"] == id {
			return rec
		}
	}
	return nil
}

func notFound(w http.ResponseWriter) {
	reply(w, http.StatusNotFound, map[string]any{
		"error":  map[string]any{"message": "No Record found", "detail": "Record doesn't exist or ACL restricts the record retrieval"},
		"status": "failure",
	})
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
