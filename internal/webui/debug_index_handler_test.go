package webui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/app"
	"gtfsaudit.onebusaway.org/internal/appconf"
	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/audit/catalog"
	"gtfsaudit.onebusaway.org/internal/auditdb"
	"gtfsaudit.onebusaway.org/internal/feed"
)

func newTestUI(t *testing.T) (*WebUI, http.Handler) {
	t.Helper()
	store, err := auditdb.NewClient(auditdb.NewConfig(":memory:", appconf.Test, false), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ui := &WebUI{Application: &app.Application{Registry: catalog.Default(), Store: store}}
	router := httprouter.New()
	ui.SetWebUIRoutes(router)
	return ui, router
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDebugIndex(t *testing.T) {
	_, h := newTestUI(t)

	rec := get(t, h, "/debug/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Choose a data type")

	rec = get(t, h, "/debug/?dataType=rules")
	assert.Contains(t, rec.Body.String(), "Audit rules")
	assert.Contains(t, rec.Body.String(), "TC01")
}

func TestDebugRun(t *testing.T) {
	ui, h := newTestUI(t)

	summary := audit.Summarize([]audit.Report{{RuleID: "RI01", Status: audit.StatusSuccess, Score: 100}})
	summary.RunID = "run-1"
	summary.StartedAt = time.Now()
	require.NoError(t, ui.Store.SaveRun(context.Background(), "feed.zip", summary, feed.Summary{}))

	rec := get(t, h, "/debug/?dataType=run&id=run-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Audit run run-1")
	assert.Contains(t, rec.Body.String(), "feed.zip")

	rec = get(t, h, "/debug/?dataType=run&id=missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/debug/?dataType=run&id=%3Cscript%3E")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/debug/?dataType=runs")
	assert.Contains(t, rec.Body.String(), "run-1")
}
