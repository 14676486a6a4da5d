package restapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/auditdb"
	"gtfsaudit.onebusaway.org/internal/dataset"
	"gtfsaudit.onebusaway.org/internal/feed"
	"gtfsaudit.onebusaway.org/internal/models"
	"gtfsaudit.onebusaway.org/internal/utils"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// auditEntry is the response body of a completed audit.
type auditEntry struct {
	audit.Summary
	Source string       `json:"source"`
	Feed   feed.Summary `json:"feed"`
}

type storedAuditEntry struct {
	Run     auditdb.Run    `json:"run"`
	Reports []audit.Report `json:"reports"`
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLimit(r *http.Request) (int, map[string][]string) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		return 0, map[string][]string{
			"limit": {"limit must be an integer between 1 and " + strconv.Itoa(maxListLimit)},
		}
	}
	return limit, nil
}

// createAuditHandler audits a feed given either as a zip request body or as
// a url query parameter. rules and group narrow the rule selection.
func (api *RestAPI) createAuditHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fieldErrors := make(map[string][]string)

	rules, err := api.SelectRules(splitList(q.Get("rules")), q.Get("group"))
	if err != nil {
		fieldErrors["rules"] = append(fieldErrors["rules"], err.Error())
	}
	url := q.Get("url")
	if url != "" && !feed.IsURL(url) {
		fieldErrors["url"] = append(fieldErrors["url"], "url must use http or https")
	}
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	var loaded *feed.Loaded
	if url != "" {
		loaded, err = feed.Load(r.Context(), api.HTTPClient, url)
		if err != nil {
			api.sendResponse(w, r, models.NewErrorResponse(http.StatusBadGateway, err.Error()))
			return
		}
	} else {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, feed.MaxFeedBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				api.sendResponse(w, r, models.NewErrorResponse(http.StatusRequestEntityTooLarge, "feed archive too large"))
				return
			}
			api.serverErrorResponse(w, r, err)
			return
		}
		if len(b) == 0 {
			api.validationErrorResponse(w, r, map[string][]string{
				"body": {"a zip archive body or a url parameter is required"},
			})
			return
		}
		source := q.Get("name")
		if source == "" {
			source = "upload"
		}
		loaded, err = feed.FromBytes(source, b)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, dataset.ErrNotZip) {
				msg = "body is not a zip archive"
			}
			api.validationErrorResponse(w, r, map[string][]string{"body": {msg}})
			return
		}
	}

	summary, err := api.Audit(r.Context(), loaded, rules)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewResponse(http.StatusCreated, map[string]interface{}{
		"entry": auditEntry{Summary: summary, Source: loaded.Source, Feed: loaded.Summary},
	}, "Created"))
}

func (api *RestAPI) listAuditsHandler(w http.ResponseWriter, r *http.Request) {
	if api.Store == nil {
		api.storeUnavailableResponse(w, r)
		return
	}
	limit, fieldErrors := parseLimit(r)
	if fieldErrors != nil {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	runs, err := api.Store.ListRuns(r.Context(), limit+1)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	exceeded := len(runs) > limit
	if exceeded {
		runs = runs[:limit]
	}
	api.sendResponse(w, r, models.NewListResponse(runs, exceeded))
}

func (api *RestAPI) auditHandler(w http.ResponseWriter, r *http.Request) {
	id := paramFromRequest(r, "id")
	if err := utils.ValidateID(id); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{"id": {err.Error()}})
		return
	}
	if api.Store == nil {
		api.storeUnavailableResponse(w, r)
		return
	}

	run, reports, err := api.Store.GetRun(r.Context(), id)
	if errors.Is(err, auditdb.ErrRunNotFound) {
		api.sendNotFound(w, r)
		return
	}
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	if fileType := r.URL.Query().Get("file_type"); fileType != "" {
		reports = audit.GroupByFileType(reports)[fileType]
	}
	if reports == nil {
		reports = []audit.Report{}
	}
	api.sendResponse(w, r, models.NewEntryResponse(storedAuditEntry{Run: run, Reports: reports}))
}
