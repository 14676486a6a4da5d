package app

import "net/http"

// RequestHasInvalidAPIKey checks the key query parameter, then the
// X-API-Key header.
func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	return app.IsInvalidAPIKey(key)
}

// IsInvalidAPIKey reports whether key is rejected. With no keys configured
// the API is open.
func (app *Application) IsInvalidAPIKey(key string) bool {
	if app.Config == nil || len(app.Config.Server.APIKeys) == 0 {
		return false
	}
	if key == "" {
		return true
	}

	for _, validKey := range app.Config.Server.APIKeys {
		if key == validKey {
			return false
		}
	}

	return true
}
