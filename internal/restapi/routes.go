package restapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"gtfsaudit.onebusaway.org/internal/appconf"
	"gtfsaudit.onebusaway.org/internal/webui"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request)

func validateAPIKey(api *RestAPI, finalHandler handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.invalidAPIKeyResponse(w, r)
			return
		}
		finalHandler(w, r)
	})
}

func (api *RestAPI) SetRoutes(router *httprouter.Router) {
	router.Handler(http.MethodGet, "/healthz", http.HandlerFunc(api.healthHandler))

	router.Handler(http.MethodGet, "/api/v1/rules", validateAPIKey(api, api.rulesHandler))
	router.Handler(http.MethodGet, "/api/v1/rules/:id", validateAPIKey(api, api.ruleHandler))
	router.Handler(http.MethodGet, "/api/v1/rules/:id/history", validateAPIKey(api, api.ruleHistoryHandler))

	router.Handler(http.MethodPost, "/api/v1/audits", validateAPIKey(api, api.createAuditHandler))
	router.Handler(http.MethodGet, "/api/v1/audits", validateAPIKey(api, api.listAuditsHandler))
	router.Handler(http.MethodGet, "/api/v1/audits/:id", validateAPIKey(api, api.auditHandler))

	if api.Config == nil || api.Config.Environment() != appconf.Production {
		ui := &webui.WebUI{Application: api.Application}
		ui.SetWebUIRoutes(router)
	}

	router.NotFound = http.HandlerFunc(api.sendNotFound)
	router.MethodNotAllowed = http.HandlerFunc(api.methodNotAllowedResponse)
}

// paramFromRequest extracts a named route parameter.
func paramFromRequest(r *http.Request, name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}
