package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/worklogs/worklogs/pkg/report"
	"github.com/worklogs/worklogs/pkg/storage"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.DB.ListRuns(r.Context(), q.Get("project"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.DB.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleRunEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.DB.RunEntries(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entries)
}

type summaryResponse struct {
	TotalHours   float64          `json:"total_hours"`
	Entries      int              `json:"entries"`
	Contributors int              `json:"contributors"`
	Issues       int              `json:"issues"`
	ByAuthor     []bucketResponse `json:"by_author"`
	ByMonth      []bucketResponse `json:"by_month"`
	ByProduct    []bucketResponse `json:"by_product_item"`
	ByComponent  []bucketResponse `json:"by_component"`
	ByLabel      []bucketResponse `json:"by_label"`
	ByTeam       []bucketResponse `json:"by_team"`
}

type bucketResponse struct {
	Name    string  `json:"name"`
	Hours   float64 `json:"hours"`
	Entries int     `json:"entries"`
	Issues  int     `json:"issues"`
}

func toBuckets(in []report.Bucket) []bucketResponse {
	out := make([]bucketResponse, 0, len(in))
	for _, b := range in {
		out = append(out, bucketResponse{Name: b.Name, Hours: b.Hours(), Entries: b.Entries, Issues: b.Issues})
	}
	return out
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.DB.RunEntries(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	st := report.Summarize(entries)
	writeJSON(w, summaryResponse{
		TotalHours:   st.TotalHours(),
		Entries:      st.Entries,
		Contributors: st.Contributors,
		Issues:       st.Issues,
		ByAuthor:     toBuckets(st.ByAuthor),
		ByMonth:      toBuckets(st.ByMonth),
		ByProduct:    toBuckets(st.ByProduct),
		ByComponent:  toBuckets(st.ByComponent),
		ByLabel:      toBuckets(st.ByLabel),
		ByTeam:       toBuckets(st.ByTeam),
	})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
