package restapi

import (
	"net/http"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/models"
)

func (api *RestAPI) rulesHandler(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")

	infos := api.Registry.Infos()
	if group != "" {
		filtered := make([]audit.RuleInfo, 0, len(infos))
		for _, info := range infos {
			if info.Group == group {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}

	api.sendResponse(w, r, models.NewListResponse(infos, false))
}

func (api *RestAPI) ruleHandler(w http.ResponseWriter, r *http.Request) {
	rule, ok := api.Registry.Lookup(paramFromRequest(r, "id"))
	if !ok {
		api.sendNotFound(w, r)
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(rule.Info()))
}

func (api *RestAPI) ruleHistoryHandler(w http.ResponseWriter, r *http.Request) {
	rule, ok := api.Registry.Lookup(paramFromRequest(r, "id"))
	if !ok {
		api.sendNotFound(w, r)
		return
	}
	if api.Store == nil {
		api.storeUnavailableResponse(w, r)
		return
	}
	limit, fieldErrors := parseLimit(r)
	if fieldErrors != nil {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	history, err := api.Store.RuleHistory(r.Context(), rule.ID, limit+1)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	exceeded := len(history) > limit
	if exceeded {
		history = history[:limit]
	}
	api.sendResponse(w, r, models.NewListResponse(history, exceeded))
}
