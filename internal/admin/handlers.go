package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tkingovr/routegate/api"
)

const maxMatchBody = 1 << 20

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"Page":   "overview",
		"Stats":  stats,
		"Routes": len(s.routes.Table().Routes()),
	}
	renderPage(w, "overview", data)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	table := s.routes.Table()
	routesYAML, err := yaml.Marshal(table.File())
	if err != nil {
		http.Error(w, "failed to render routes", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"Page":       "routes",
		"Routes":     table.Info(),
		"RoutesYAML": string(routesYAML),
	}
	renderPage(w, "routes", data)
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	filter, err := parseQueryFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	records, err := s.store.Query(r.Context(), filter)
	if err != nil {
		http.Error(w, "failed to query access log", http.StatusInternalServerError)
		return
	}

	// newest first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	data := map[string]any{
		"Page":    "access",
		"Records": records,
	}
	renderPage(w, "access", data)
}

func (s *Server) handleAccessStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel := s.store.Subscribe(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case record, ok := <-ch:
			if !ok {
				return
			}
			row, err := renderAccessRow(record)
			if err != nil {
				s.logger.Error("rendering access row", "error", err)
				continue
			}
			writeEvent(w, "access", row)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAPIRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.routes.Table().Info())
}

func (s *Server) handleAPIAccess(w http.ResponseWriter, r *http.Request) {
	filter, err := parseQueryFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := s.store.Query(r.Context(), filter)
	if err != nil {
		http.Error(w, "failed to query access log", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*api.AccessRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAPIMatch(w http.ResponseWriter, r *http.Request) {
	var req api.MatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMatchBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.Path, "/") {
		http.Error(w, "path must start with /", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.routes.Table().Check(r.Context(), req))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// parseQueryFilter reads route, method, status, errors, since, limit and
// offset from URL query parameters.
func parseQueryFilter(q url.Values) (api.QueryFilter, error) {
	f := api.QueryFilter{
		Route:     q.Get("route"),
		Method:    strings.ToUpper(q.Get("method")),
		OnlyError: q.Get("errors") == "1" || q.Get("errors") == "true",
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"status", &f.Status},
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	}
	for _, p := range ints {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid %s %q", p.name, v)
		}
		*p.dst = n
	}

	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return f, fmt.Errorf("invalid since %q: %w", v, err)
		}
		f.Since = time.Now().Add(-d)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeEvent writes one server-sent event. Every line of data gets its
// own data field.
func writeEvent(w http.ResponseWriter, event string, data []byte) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", event)
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.WriteTo(w)
}

func statusColor(status int) string {
	switch {
	case status >= 500:
		return "bg-red-900 text-red-300"
	case status >= 400:
		return "bg-yellow-900 text-yellow-300"
	case status >= 300:
		return "bg-blue-900 text-blue-300"
	default:
		return "bg-green-900 text-green-300"
	}
}
