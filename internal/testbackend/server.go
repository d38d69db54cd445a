// Package testbackend is an in-memory planner backend speaking the HTTP contract of the
// import client. Tests mount Handler on an httptest server.
package testbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/modules/planimport/domain/item"
	"github.com/seoplan/planner/modules/planimport/domain/record"
	"github.com/seoplan/planner/modules/planimport/services"
	"github.com/seoplan/planner/pkg/httpapi"
	"github.com/seoplan/planner/pkg/logging"
	"github.com/seoplan/planner/pkg/middleware"
)

type Options struct {
	// Token, when set, must be presented as a bearer token on every call.
	Token string
	// Clusters is the registry of known targets and the cluster names each one holds.
	Clusters map[record.TargetID][]string
	Users    []services.User
	Logger   *logrus.Entry
}

type Server struct {
	mu       sync.Mutex
	opts     Options
	nextID   record.ID
	records  []record.Record
	imports  int
	failures map[record.TargetID]int
	router   *mux.Router
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	s := &Server{opts: opts, failures: map[record.TargetID]int{}}
	r := mux.NewRouter()
	r.Use(middleware.WithLogger(opts.Logger, "X-Request-ID"), s.authorize)
	r.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	r.HandleFunc("/records", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/records", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/records", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/records/{id:[0-9]+}", s.handlePatch).Methods(http.MethodPatch)
	r.HandleFunc("/users", s.handleUsers).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Seed stores records as if they had been imported earlier, assigning ids.
func (s *Server) Seed(records ...record.Record) []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Record, len(records))
	for i, r := range records {
		out[i] = s.insert(r.Project, r.Fields)
	}
	return out
}

// Records returns a snapshot of every stored record in insertion order.
func (s *Server) Records() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Record, len(s.records))
	for i, r := range s.records {
		out[i] = record.Record{ID: r.ID, Project: r.Project, Fields: r.Fields.Clone()}
	}
	return out
}

// Imports is the number of POST /import calls that passed authorization.
func (s *Server) Imports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imports
}

// FailCreates makes the next n POST /records calls for target answer 503.
func (s *Server) FailCreates(target record.TargetID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[target] = n
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.Token {
			_ = httpapi.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type importRequest struct {
	TargetIDs []record.TargetID `json:"target_ids"`
	Items     []item.Fields     `json:"items"`
	item.Defaults
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "malformed payload: "+err.Error())
		return
	}
	if len(req.TargetIDs) == 0 || len(req.Items) == 0 {
		_ = httpapi.WriteErrorDetail(w, http.StatusUnprocessableEntity, "empty_batch", []string{"target_ids", "items"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports++

	missing := map[record.TargetID][]string{}
	var allowed []record.TargetID
	for _, t := range req.TargetIDs {
		known, ok := s.opts.Clusters[t]
		if !ok {
			_ = httpapi.WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown project %d", t))
			return
		}
		var reasons []string
		for _, f := range req.Items {
			if f.Cluster == nil || slices.Contains(known, *f.Cluster) {
				continue
			}
			reason := "cluster " + *f.Cluster
			if !slices.Contains(reasons, reason) {
				reasons = append(reasons, reason)
			}
		}
		if len(reasons) > 0 {
			missing[t] = reasons
		} else {
			allowed = append(allowed, t)
		}
	}
	if len(missing) > 0 {
		s.opts.Logger.WithField("missing", missing).Debug("import blocked by prerequisites")
		_ = httpapi.WriteJSON(w, http.StatusMultiStatus, map[string]any{
			"missing_by_project":  missing,
			"allowed_project_ids": nonNil(allowed),
		})
		return
	}

	created, updated := 0, 0
	for _, t := range req.TargetIDs {
		for _, f := range req.Items {
			f = f.Clone()
			req.Defaults.ApplyTo(&f)
			if i := s.find(t, record.KeyOf(f)); i >= 0 {
				s.records[i].Fields = f
				updated++
				continue
			}
			s.insert(t, f)
			created++
		}
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]int{"created": created, "updated": updated})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var targets []record.TargetID
	for _, raw := range r.URL.Query()["target"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid target "+strconv.Quote(raw))
			return
		}
		targets = append(targets, record.TargetID(id))
	}
	out := []record.Record{}
	for _, rec := range s.Records() {
		if len(targets) == 0 || slices.Contains(targets, rec.Project) {
			out = append(out, rec)
		}
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req record.Record
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "malformed payload: "+err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.opts.Clusters[req.Project]; !ok {
		_ = httpapi.WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown project %d", req.Project))
		return
	}
	if s.failures[req.Project] > 0 {
		s.failures[req.Project]--
		_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "try again")
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, s.insert(req.Project, req.Fields))
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	var patch json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "malformed patch: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.records, func(rec record.Record) bool { return rec.ID == record.ID(id) })
	if i < 0 {
		_ = httpapi.WriteError(w, http.StatusNotFound, "record not found")
		return
	}
	doc, err := json.Marshal(s.records[i].Fields)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "malformed patch: "+err.Error())
		return
	}
	var f item.Fields
	if err := json.Unmarshal(merged, &f); err != nil {
		_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.records[i].Fields = f
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []record.ID `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		_ = httpapi.WriteErrorDetail(w, http.StatusUnprocessableEntity, "empty_delete", []string{"ids"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = slices.DeleteFunc(s.records, func(rec record.Record) bool {
		return slices.Contains(req.IDs, rec.ID)
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	_ = httpapi.WriteJSON(w, http.StatusOK, nonNil(s.opts.Users))
}

func (s *Server) insert(target record.TargetID, f item.Fields) record.Record {
	s.nextID++
	rec := record.Record{ID: s.nextID, Project: target, Fields: f.Clone()}
	s.records = append(s.records, rec)
	return rec
}

// find returns the index of target's record under key, or -1.
func (s *Server) find(target record.TargetID, key record.GroupKey) int {
	return slices.IndexFunc(s.records, func(rec record.Record) bool {
		return rec.Project == target && record.KeyOf(rec.Fields) == key
	})
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
