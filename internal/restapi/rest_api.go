// Package restapi serves the rule catalogue, on-demand audits and stored
// audit runs over HTTP.
package restapi

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"gtfsaudit.onebusaway.org/internal/app"
)

type RestAPI struct {
	*app.Application
	rateLimiter func(http.Handler) http.Handler
}

// NewRestAPI creates a new RestAPI instance with initialized rate limiter
func NewRestAPI(app *app.Application) *RestAPI {
	rateLimit := 0
	if app.Config != nil {
		rateLimit = app.Config.Server.RateLimit
	}
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(rateLimit, time.Second),
	}
}

// Handler returns the router wrapped in the middleware chain, outermost
// first: request logging, security headers, compression, rate limiting.
func (api *RestAPI) Handler() http.Handler {
	router := httprouter.New()
	api.SetRoutes(router)

	var handler http.Handler = router
	if api.rateLimiter != nil {
		handler = api.rateLimiter(handler)
	}
	handler = CompressionMiddleware(handler)
	handler = api.WithSecurityHeaders(handler)
	return NewRequestLoggingMiddleware(api.Logger)(handler)
}
