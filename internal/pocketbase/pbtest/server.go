// Package pbtest provides an in-memory stand-in for the PocketBase REST API
// for use in tests.
package pbtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

// Record is a stored record.
type Record = map[string]any

// Server is a fake backend. All exported methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	records   map[string][]Record
	files     map[string][]byte
	passwords map[string]string // email -> password
	failures  map[string]int    // record id -> status returned on PATCH
	requests  []string
	authSeen  []string
	nextID    int
	clock     time.Time
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		records:   map[string][]Record{},
		files:     map[string][]byte{},
		passwords: map[string]string{},
		failures:  map[string]int{},
		clock:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Seed inserts records into collection, filling system fields that are
// missing. It returns the stored ids in order.
func (s *Server) Seed(collection string, recs ...Record) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, s.insertLocked(collection, rec)["id"].(string))
	}
	return ids
}

// Get returns a copy of a stored record, or nil.
func (s *Server) Get(collection, id string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.findLocked(collection, id); rec != nil {
		return copyRecord(rec)
	}
	return nil
}

// All returns copies of every record in collection.
func (s *Server) All(collection string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records[collection]))
	for _, rec := range s.records[collection] {
		out = append(out, copyRecord(rec))
	}
	return out
}

// PutFile stores file content served from /api/files/{collection}/{id}/{name}.
func (s *Server) PutFile(collection, id, name string, data []byte) {
	s.mu.Lock()
	s.files[fileKey(collection, id, name)] = data
	s.mu.Unlock()
}

// File returns uploaded file content.
func (s *Server) File(collection, id, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[fileKey(collection, id, name)]
	return data, ok
}

// AddUser registers sign-in credentials and a users record.
func (s *Server) AddUser(email, password string, fields Record) string {
	rec := Record{"email": email, "username": strings.Split(email, "@")[0], "verified": true}
	for k, v := range fields {
		rec[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[email] = password
	return s.insertLocked("users", rec)["id"].(string)
}

// FailUpdates makes every PATCH of record id fail with status.
func (s *Server) FailUpdates(id string, status int) {
	s.mu.Lock()
	s.failures[id] = status
	s.mu.Unlock()
}

// Requests returns "METHOD /path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many requests used method on a path with prefix.
func (s *Server) Count(method, prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, method+" "+prefix) {
			n++
		}
	}
	return n
}

// AuthHeaders returns the Authorization header of every request.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authSeen...)
}

// Token returns a signed auth token for a user id, valid for ttl.
func Token(userID string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"id":           userID,
		"type":         "auth",
		"collectionId": "_pb_users_auth_",
		"exp":          time.Now().Add(ttl).Unix(),
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("pbtest"))
	return token
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.authSeen = append(s.authSeen, r.Header.Get("Authorization"))
	s.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "health":
		writeJSON(w, http.StatusOK, Record{"code": 200, "message": "API is healthy."})
	case len(parts) == 5 && parts[1] == "files":
		s.serveFile(w, parts[2], parts[3], parts[4])
	case len(parts) == 4 && parts[1] == "collections" && parts[3] != "records":
		s.serveAuth(w, r, parts[2], parts[3])
	case len(parts) == 4 && parts[1] == "collections":
		s.serveCollection(w, r, parts[2])
	case len(parts) == 5 && parts[1] == "collections" && parts[3] == "records":
		s.serveRecord(w, r, parts[2], parts[4])
	default:
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
	}
}

func (s *Server) serveFile(w http.ResponseWriter, collection, id, name string) {
	data, ok := s.File(collection, id, name)
	if !ok {
		writeError(w, http.StatusNotFound, "File not found.", nil)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) serveAuth(w http.ResponseWriter, r *http.Request, collection, action string) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)

	switch action {
	case "auth-with-password":
		s.mu.Lock()
		pw, ok := s.passwords[body["identity"]]
		var user Record
		for _, rec := range s.records[collection] {
			if rec["email"] == body["identity"] {
				user = copyRecord(rec)
			}
		}
		s.mu.Unlock()
		if !ok || pw != body["password"] || user == nil {
			writeError(w, http.StatusBadRequest, "Failed to authenticate.", nil)
			return
		}
		writeJSON(w, http.StatusOK, Record{"token": Token(user["id"].(string), time.Hour), "record": user})
	case "auth-refresh":
		token := r.Header.Get("Authorization")
		claims := jwt.MapClaims{}
		if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
			writeError(w, http.StatusUnauthorized, "The request requires valid record authorization token.", nil)
			return
		}
		id, _ := claims["id"].(string)
		user := s.Get(collection, id)
		writeJSON(w, http.StatusOK, Record{"token": Token(id, time.Hour), "record": user})
	case "request-email-change", "request-password-reset":
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotFound, "Unknown auth action.", nil)
	}
}

func (s *Server) serveCollection(w http.ResponseWriter, r *http.Request, collection string) {
	switch r.Method {
	case http.MethodGet:
		s.list(w, r, collection)
	case http.MethodPost:
		fields, files, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if collection == "users" {
			if fields["password"] != fields["passwordConfirm"] {
				writeError(w, http.StatusBadRequest, "Failed to create record.", map[string]any{
					"passwordConfirm": Record{"code": "validation_values_mismatch", "message": "Values don't match."},
				})
				return
			}
		}
		s.mu.Lock()
		if collection == "users" {
			email, _ := fields["email"].(string)
			s.passwords[email], _ = fields["password"].(string)
			delete(fields, "password")
			delete(fields, "passwordConfirm")
		}
		rec := s.insertLocked(collection, fields)
		for field, f := range files {
			rec[field] = f.name
			s.files[fileKey(collection, rec["id"].(string), f.name)] = f.data
		}
		out := copyRecord(rec)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed.", nil)
	}
}

func (s *Server) serveRecord(w http.ResponseWriter, r *http.Request, collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findLocked(collection, id)
	if rec == nil {
		writeError(w, http.StatusNotFound, "The requested resource wasn't found.", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.expandLocked(rec, r.URL.Query().Get("expand")))
	case http.MethodPatch:
		if status, ok := s.failures[id]; ok {
			writeError(w, status, "Failed to update record.", nil)
			return
		}
		fields, files, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		for k, v := range fields {
			rec[k] = v
		}
		for field, f := range files {
			rec[field] = f.name
			s.files[fileKey(collection, id, f.name)] = f.data
		}
		s.clock = s.clock.Add(time.Second)
		rec["updated"] = s.clock.Format("2006-01-02 15:04:05.000Z")
		writeJSON(w, http.StatusOK, copyRecord(rec))
	case http.MethodDelete:
		recs := s.records[collection]
		for i := range recs {
			if recs[i]["id"] == id {
				s.records[collection] = append(recs[:i], recs[i+1:]...)
				break
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed.", nil)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, collection string) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	if perPage < 1 {
		perPage = 30
	}

	s.mu.Lock()
	var matched []Record
	for _, rec := range s.records[collection] {
		if matchFilter(rec, q.Get("filter")) {
			matched = append(matched, s.expandLocked(rec, q.Get("expand")))
		}
	}
	s.mu.Unlock()

	sortRecords(matched, q.Get("sort"))

	total := len(matched)
	totalPages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, Record{
		"page":       page,
		"perPage":    perPage,
		"totalItems": total,
		"totalPages": totalPages,
		"items":      append([]Record{}, matched[start:end]...),
	})
}

func (s *Server) insertLocked(collection string, rec Record) Record {
	stored := copyRecord(rec)
	if _, ok := stored["id"]; !ok {
		s.nextID++
		stored["id"] = fmt.Sprintf("rec%011d", s.nextID)
	}
	s.clock = s.clock.Add(time.Second)
	ts := s.clock.Format("2006-01-02 15:04:05.000Z")
	if _, ok := stored["created"]; !ok {
		stored["created"] = ts
	}
	if _, ok := stored["updated"]; !ok {
		stored["updated"] = ts
	}
	stored["collectionId"] = "col_" + collection
	stored["collectionName"] = collection
	s.records[collection] = append(s.records[collection], stored)
	return stored
}

func (s *Server) findLocked(collection, id string) Record {
	for _, rec := range s.records[collection] {
		if rec["id"] == id {
			return rec
		}
	}
	return nil
}

// expandLocked resolves relation fields named in expand. A field's related
// collection has the same name as the field.
func (s *Server) expandLocked(rec Record, expand string) Record {
	out := copyRecord(rec)
	if expand == "" {
		return out
	}
	expanded := Record{}
	for _, field := range strings.Split(expand, ",") {
		switch v := rec[field].(type) {
		case []any:
			var rel []Record
			for _, id := range v {
				if idStr, ok := id.(string); ok {
					if related := s.findLocked(field, idStr); related != nil {
						rel = append(rel, copyRecord(related))
					}
				}
			}
			if rel != nil {
				expanded[field] = rel
			}
		case []string:
			var rel []Record
			for _, id := range v {
				if related := s.findLocked(field, id); related != nil {
					rel = append(rel, copyRecord(related))
				}
			}
			if rel != nil {
				expanded[field] = rel
			}
		case string:
			if related := s.findLocked(field, v); related != nil {
				expanded[field] = copyRecord(related)
			}
		}
	}
	if len(expanded) > 0 {
		out["expand"] = expanded
	}
	return out
}

// matchFilter understands the `field = 'value'` form only.
func matchFilter(rec Record, filter string) bool {
	if filter == "" {
		return true
	}
	field, value, ok := strings.Cut(filter, "=")
	if !ok {
		return true
	}
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)
	if n := len(value); n >= 2 && (value[0] == '\'' || value[0] == '"') && value[n-1] == value[0] {
		value = filterUnescaper.Replace(value[1 : n-1])
	}
	return fmt.Sprint(rec[field]) == value
}

var filterUnescaper = strings.NewReplacer(`\\`, `\`, `\'`, "'", `\"`, `"`)

func sortRecords(recs []Record, spec string) {
	if spec == "" {
		return
	}
	desc := strings.HasPrefix(spec, "-")
	field := strings.TrimPrefix(spec, "-")
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := fmt.Sprint(recs[i][field]), fmt.Sprint(recs[j][field])
		if desc {
			return a > b
		}
		return a < b
	})
}

type upload struct {
	name string
	data []byte
}

func readBody(r *http.Request) (Record, map[string]upload, error) {
	fields := Record{}
	files := map[string]upload{}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		for k, vals := range r.MultipartForm.Value {
			if k == "category" || len(vals) > 1 {
				list := make([]any, 0, len(vals))
				for _, v := range vals {
					list = append(list, v)
				}
				fields[k] = list
				continue
			}
			switch vals[0] {
			case "true":
				fields[k] = true
			case "false":
				fields[k] = false
			default:
				fields[k] = vals[0]
			}
		}
		for k, hdrs := range r.MultipartForm.File {
			f, err := hdrs[0].Open()
			if err != nil {
				return nil, nil, err
			}
			data, _ := io.ReadAll(f)
			f.Close()
			files[k] = upload{name: hdrs[0].Filename, data: data}
		}
		return fields, files, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return fields, files, nil
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func fileKey(collection, id, name string) string {
	return collection + "/" + id + "/" + name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, status, Record{"code": status, "message": msg, "data": data})
}
