package api

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/tibiaops/opsdash/server/internal/dashboard"
)

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

// chartJSURL is where the page loads the chart library from.
const chartJSURL = "https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"

// pageData is the template input of the dashboard page.
type pageData struct {
	View    dashboard.View
	ChartJS string
}

// page serves GET /: the dashboard document with the current view inlined.
// Every other unmatched path is a 404.
func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var buf bytes.Buffer
	data := pageData{View: h.deps.Dashboard.View(), ChartJS: chartJSURL}
	if err := pageTmpl.Execute(&buf, data); err != nil {
		slog.Error("api: render page", "err", err)
		jsonErr(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}
