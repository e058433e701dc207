// Copyright 2025 MassGen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package status

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes read-only HTTP access to status documents under a log
// root, for external UIs and parent orchestrators that would otherwise
// have to poll the filesystem directly. It never writes; the
// Aggregator remains the single writer of any given document.
type Server struct {
	logRoot string
	metrics http.Handler
	mux     *chi.Mux
}

// NewServer builds a Server rooted at logRoot. metricsHandler may be
// nil, in which case GET /metrics responds 503.
func NewServer(logRoot string, metricsHandler http.Handler) *Server {
	if metricsHandler == nil {
		metricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}

	s := &Server{logRoot: logRoot, metrics: metricsHandler}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/turns/{turn_id}/status", s.handleStatus)
	r.Get("/turns/{turn_id}/attempts/{attempt}/status", s.handleStatus)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) { s.metrics.ServeHTTP(w, req) })
	s.mux = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	turnID := chi.URLParam(r, "turn_id")
	if turnID == "" {
		http.Error(w, "turn_id is required", http.StatusBadRequest)
		return
	}

	attempt := 1
	if raw := chi.URLParam(r, "attempt"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "attempt must be a positive integer", http.StatusBadRequest)
			return
		}
		attempt = n
	} else {
		attempt = s.latestAttempt(turnID)
	}

	path := filepath.Join(s.logRoot, "turn_"+turnID, fmt.Sprintf("attempt_%d", attempt), "status.json")
	doc, err := Read(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("status not found for turn %s attempt %d", turnID, attempt), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

// latestAttempt scans for the highest attempt_N directory present,
// defaulting to 1 when none is found (a fresh turn with no attempts
// written yet still resolves to the attempt New would create).
func (s *Server) latestAttempt(turnID string) int {
	turnDir := filepath.Join(s.logRoot, "turn_"+turnID)
	latest := 1
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(turnDir, fmt.Sprintf("attempt_%d", n))); err != nil {
			break
		}
		latest = n
	}
	return latest
}
