// Package router provides a chi based HTTP router module.
//
// The module creates a chi.Mux with request id, real ip, recovery, timeout
// and CORS middleware. During Setup it runs two workflows across every
// registered module: "router.middleware" collects extra middleware and
// "router.routes" collects routes, which are mounted under the configured
// base path in registration order.
//
// # Exports
//
//   - "router": the chi.Router
//   - "handler": the http.Handler to serve
//   - "port": the configured port
//   - "routes": "METHOD pattern" strings of every mounted route
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/GoCodeAlone/oors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ModuleName is the unique identifier for the router module.
const ModuleName = "router"

// Export keys
const (
	ExportRouter  = "router"
	ExportHandler = "handler"
	ExportPort    = "port"
	ExportRoutes  = "routes"
)

// EventRoutesMounted is emitted as "module:router:routes:mounted" once the
// routes are in place.
const EventRoutesMounted = "routes:mounted"

var (
	ErrNoRouter      = errors.New("router module exported no router")
	ErrInvalidRoute  = errors.New("invalid route")
	ErrInvalidMethod = errors.New("unsupported HTTP method")
)

var methods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace,
}

// Module is the router module.
type Module struct {
	oors.BaseModule

	config Config
	mux    *chi.Mux
	logger oors.Logger
}

// New creates a router module with a raw configuration.
func New(config map[string]any) *Module {
	return &Module{BaseModule: oors.NewBaseModule(ModuleName, config)}
}

// ConfigSchema implements oors.SchemaProvider.
func (m *Module) ConfigSchema() oors.ConfigSchema { return Schema() }

// Initialize decodes the configuration and creates the router with its
// default middleware.
func (m *Module) Initialize(mc *oors.ModuleContext) error {
	m.logger = mc.Logger()
	if err := mc.DecodeConfig(&m.config); err != nil {
		return err
	}

	m.mux = chi.NewRouter()
	m.mux.Use(middleware.RequestID)
	m.mux.Use(middleware.RealIP)
	m.mux.Use(middleware.Recoverer)
	m.mux.Use(middleware.Timeout(m.config.RequestTimeout()))
	m.mux.Use(m.corsMiddleware())

	m.logger.Debug("Created chi router",
		"basePath", m.config.BasePath,
		"allowedOrigins", m.config.AllowedOrigins,
		"timeout", m.config.RequestTimeout())
	return nil
}

// Setup collects middleware and routes from every module and exports the
// handler.
func (m *Module) Setup(ctx context.Context, mc *oors.ModuleContext) error {
	rc := &RouteContext{BasePath: m.config.BasePath, Config: m.config}

	chains, err := Middlewares.Run(ctx, mc.Manager(), nil, rc)
	if err != nil {
		return fmt.Errorf("collect middleware: %w", err)
	}
	for _, chain := range chains {
		for _, mw := range chain {
			m.mux.Use(mw)
		}
	}

	contributed, err := Routes.Run(ctx, mc.Manager(), nil, rc)
	if err != nil {
		return fmt.Errorf("collect routes: %w", err)
	}

	var mounted []string
	mount := func(r chi.Router) {
		for i, routes := range contributed {
			for _, route := range routes {
				desc, mountErr := m.mount(r, route)
				if mountErr != nil {
					err = errors.Join(err, fmt.Errorf("module %q: %w", mc.Manager().ModuleNames()[i], mountErr))
					continue
				}
				mounted = append(mounted, desc)
			}
		}
	}
	if m.config.BasePath == "" {
		m.mux.Group(mount)
	} else {
		m.mux.Route(m.config.BasePath, mount)
	}
	if err != nil {
		return err
	}

	m.logger.Info("Mounted routes", "count", len(mounted), "basePath", m.config.BasePath)

	if err := mc.Export(map[string]any{
		ExportRouter:  chi.Router(m.mux),
		ExportHandler: http.Handler(m.mux),
		ExportPort:    m.config.Port,
		ExportRoutes:  mounted,
	}); err != nil {
		return err
	}
	return mc.Emit(ctx, EventRoutesMounted, map[string]any{"count": len(mounted), "routes": mounted})
}

func (m *Module) mount(r chi.Router, route Route) (string, error) {
	if route.Handler == nil || !strings.HasPrefix(route.Pattern, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoute, route.Pattern)
	}
	if route.Method == "" {
		r.Handle(route.Pattern, route.Handler)
		return "* " + m.config.BasePath + route.Pattern, nil
	}

	method := strings.ToUpper(route.Method)
	if !slices.Contains(methods, method) {
		return "", fmt.Errorf("%w: %s", ErrInvalidMethod, route.Method)
	}
	r.Method(method, route.Pattern, route.Handler)
	return method + " " + m.config.BasePath + route.Pattern, nil
}

// Router returns the chi router. It is nil before Initialize.
func (m *Module) Router() chi.Router { return m.mux }

// ServeHTTP serves the router.
func (m *Module) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}

// corsMiddleware creates a CORS middleware handler using the module's configuration
func (m *Module) corsMiddleware() func(http.Handler) http.Handler {
	allowMethods := strings.Join(m.config.AllowedMethods, ", ")
	allowHeaders := strings.Join(m.config.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if slices.Contains(m.config.AllowedOrigins, "*") || slices.Contains(m.config.AllowedOrigins, origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				if allowMethods != "" {
					h.Set("Access-Control-Allow-Methods", allowMethods)
				}
				if allowHeaders != "" {
					h.Set("Access-Control-Allow-Headers", allowHeaders)
				}
				if m.config.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if m.config.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", fmt.Sprintf("%d", m.config.MaxAge))
				}
			}

			// preflight
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
