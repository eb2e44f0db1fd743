package http

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/dustin/go-humanize"
)

//go:embed page.html.tmpl
var pageTemplate string

var pageFuncMap = template.FuncMap{
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.Time(t)
	},
}

type page struct {
	tmpl *template.Template
}

func newPage() (*page, error) {
	tmpl, err := template.New("page").Funcs(pageFuncMap).Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &page{tmpl: tmpl}, nil
}

type windowOption struct {
	Value    domain.TimeWindow
	Label    string
	Selected bool
}

type sessionSummary struct {
	Window      string
	Markers     int
	Skipped     int
	GeneratedAt time.Time
}

type pageData struct {
	Windows []windowOption
	Legend  []domain.LegendEntry
	Session *sessionSummary
}

func (a *api) handlePage(w http.ResponseWriter, _ *http.Request) {
	selected := a.ctrl.DefaultWindow()
	data := pageData{Legend: domain.DepthLegend()}
	if s := a.ctrl.Current(); s != nil {
		selected = s.Window
		data.Session = &sessionSummary{
			Window:      s.Window.Label(),
			Markers:     len(s.Scene.Markers),
			Skipped:     s.Scene.Skipped,
			GeneratedAt: s.Scene.GeneratedAt,
		}
	}
	for _, tw := range domain.TimeWindows {
		data.Windows = append(data.Windows, windowOption{Value: tw, Label: tw.Label(), Selected: tw == selected})
	}

	var buf bytes.Buffer
	if err := a.page.tmpl.Execute(&buf, data); err != nil {
		a.logger.Error("render page", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
