package router

import (
	"context"
	"net/http"

	"github.com/GoCodeAlone/oors"
	"github.com/go-chi/chi/v5"
)

// Middleware is an alias for the chi middleware handler function
type Middleware func(http.Handler) http.Handler

// Route is a single handler contributed through the routes workflow.
// Pattern is relative to the configured base path.
type Route struct {
	Method  string
	Pattern string
	Handler http.Handler
}

// RouteContext is passed to every middleware and routes hook.
type RouteContext struct {
	BasePath string
	Config   Config
}

// Workflows run by the router during Setup. Other modules join them from
// Initialize:
//
//	mc.AddHook("router", "routes", router.Routes.Handle(func(ctx context.Context, rc *router.RouteContext) ([]router.Route, error) {
//		return []router.Route{router.Get("/posts", listPosts)}, nil
//	}))
var (
	Middlewares = oors.NewWorkflow[*RouteContext, []Middleware](ModuleName + ".middleware")
	Routes      = oors.NewWorkflow[*RouteContext, []Route](ModuleName + ".routes")
)

// Get is a shorthand for a GET route.
func Get(pattern string, h http.HandlerFunc) Route {
	return Route{Method: http.MethodGet, Pattern: pattern, Handler: h}
}

// Post is a shorthand for a POST route.
func Post(pattern string, h http.HandlerFunc) Route {
	return Route{Method: http.MethodPost, Pattern: pattern, Handler: h}
}

// Handle routes every method of pattern to h.
func Handle(pattern string, h http.Handler) Route {
	return Route{Pattern: pattern, Handler: h}
}

// FromContext returns the chi router exported by the router module.
func FromContext(ctx context.Context, mc *oors.ModuleContext) (chi.Router, error) {
	caps, err := mc.Dependency(ctx, ModuleName)
	if err != nil {
		return nil, err
	}
	r, ok := caps.Get(ExportRouter, nil).(chi.Router)
	if !ok {
		return nil, ErrNoRouter
	}
	return r, nil
}
