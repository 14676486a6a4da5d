package webui

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"gtfsaudit.onebusaway.org/internal/app"
	"gtfsaudit.onebusaway.org/internal/auditdb"
	"gtfsaudit.onebusaway.org/internal/utils"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

// WebUI serves a plain HTML dump of the service state for operators.
type WebUI struct {
	*app.Application
}

type debugData struct {
	Title string
	Pre   string
}

func writeDebugData(w http.ResponseWriter, title string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   spew.Sdump(data),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	dataType := r.URL.Query().Get("dataType")

	var data interface{}
	var title string

	switch dataType {
	case "rules":
		data = webUI.Registry.Infos()
		title = "Audit rules"
	case "config":
		data = webUI.Config
		title = "Configuration"
	case "runs":
		if webUI.Store == nil {
			http.Error(w, "audit history is not enabled", http.StatusServiceUnavailable)
			return
		}
		runs, err := webUI.Store.ListRuns(r.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data = runs
		title = "Recent audit runs"
	case "run":
		id := r.URL.Query().Get("id")
		if err := utils.ValidateID(id); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if webUI.Store == nil {
			http.Error(w, "audit history is not enabled", http.StatusServiceUnavailable)
			return
		}
		run, reports, err := webUI.Store.GetRun(r.Context(), id)
		if errors.Is(err, auditdb.ErrRunNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data = map[string]interface{}{"run": run, "reports": reports}
		title = "Audit run " + id
	default:
		data = map[string]string{
			"error": "Please use one of the following: rules, config, runs, run (with id).",
		}
		title = "Choose a data type"
	}

	writeDebugData(w, title, data)
}
