package restapi

import (
	"net/http"

	"gtfsaudit.onebusaway.org/internal/models"
)

func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"rules":  api.Registry.Len(),
		"store":  api.Store != nil,
	}
	if api.Store != nil {
		if err := api.Store.DB.PingContext(r.Context()); err != nil {
			status["status"] = "degraded"
			status["store_error"] = err.Error()
		}
	}
	api.sendResponse(w, r, models.NewOKResponse(status))
}
