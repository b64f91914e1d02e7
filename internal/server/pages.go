package server

import (
	"fmt"
	"net/http"

	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/report"
	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, err := s.DB.GetRun(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.DB.RunEntries(ctx, run.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	info := report.PageInfo{
		Project:     run.Project,
		BaseURL:     s.BaseURL,
		GeneratedAt: run.FinishedAt,
		Timing: &report.Timing{
			Collection: run.Collection,
			Extraction: run.Extraction,
			Total:      run.FinishedAt.Sub(run.StartedAt),
			Issues:     run.Issues,
			Worklogs:   run.Entries,
		},
		Queries: []string{run.JQL},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteHTML(w, entries, info); err != nil {
		utils.OrNop(s.Log).Errorf("Rendering run %s: %v", run.ID, err)
	}
}

func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	runs, err := s.DB.ListRuns(r.Context(), r.URL.Query().Get("project"), 100)
	if err != nil {
		writeError(w, err)
		return
	}

	rows := make([]g.Node, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, Tr(
			Td(A(Href("/runs/"+run.ID), g.Text(run.StartedAt.Format("2006-01-02 15:04:05")))),
			Td(g.Text(run.Project)),
			Td(g.Textf("%d", run.Issues)),
			Td(g.Textf("%d", run.Entries)),
			Td(g.Textf("%.2f", run.TotalHours())),
			Td(g.Textf("%d", run.Failures)),
		))
	}

	body := g.Node(P(g.Text("No runs stored yet.")))
	if len(rows) > 0 {
		body = Table(
			THead(Tr(Th(g.Text("Started")), Th(g.Text("Project")), Th(g.Text("Issues")),
				Th(g.Text("Entries")), Th(g.Text("Hours")), Th(g.Text("Failures")))),
			TBody(rows...),
		)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := g.Group([]g.Node{
		g.Raw("<!DOCTYPE html>"),
		HTML(Lang("en"),
			Head(
				Meta(Charset("UTF-8")),
				TitleEl(g.Text("Worklog runs")),
			),
			Body(
				H1(g.Text(fmt.Sprintf("Worklog runs (%d)", len(runs)))),
				body,
			),
		),
	})
	if err := page.Render(w); err != nil {
		utils.OrNop(s.Log).Errorf("Rendering index: %v", err)
	}
}
