package restapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/app"
	"gtfsaudit.onebusaway.org/internal/appconf"
	"gtfsaudit.onebusaway.org/internal/audit/catalog"
	"gtfsaudit.onebusaway.org/internal/auditdb"
	"gtfsaudit.onebusaway.org/internal/logging"
	"gtfsaudit.onebusaway.org/internal/models"
)

// createTestApi builds an API over the default catalogue with an in-memory
// store and the single API key TEST.
func createTestApi(t *testing.T) *RestAPI {
	t.Helper()
	store, err := auditdb.NewClient(auditdb.NewConfig(":memory:", appconf.Test, false), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &appconf.Config{Env: "test"}
	cfg.Server.APIKeys = []string{"TEST"}

	a := &app.Application{
		Config:   cfg,
		Logger:   slog.New(slog.DiscardHandler),
		Registry: catalog.Default(),
		Store:    store,
	}
	return NewRestAPI(a)
}

type testResponse struct {
	models.ResponseModel
	FieldErrors map[string][]string `json:"fieldErrors"`
}

func serveApiAndRetrieve(t *testing.T, api *RestAPI, method, endpoint string, body []byte) (*http.Response, testResponse) {
	t.Helper()
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	req, err := http.NewRequest(method, server.URL+endpoint, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/zip")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer logging.SafeCloseWithLogging(resp.Body,
		slog.Default().With(slog.String("component", "test")),
		"http_response_body")

	var response testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	return resp, response
}

func serveAndRetrieveEndpoint(t *testing.T, endpoint string) (*RestAPI, *http.Response, testResponse) {
	api := createTestApi(t)
	resp, model := serveApiAndRetrieve(t, api, http.MethodGet, endpoint, nil)
	return api, resp, model
}

// dataMap returns the response data as a JSON object.
func dataMap(t *testing.T, r testResponse) map[string]interface{} {
	t.Helper()
	data, ok := r.Data.(map[string]interface{})
	require.True(t, ok, "data should be an object, got %T", r.Data)
	return data
}
