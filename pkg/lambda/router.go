package lambda

import (
	"context"
	"net/http"
	"strings"
)

type route struct {
	method   string
	segments []string
	handler  HandlerFunc
}

// Router dispatches requests by method and path pattern. Patterns use
// gin-style ":name" segments, which are copied into Request.PathParams.
type Router struct {
	prefix string
	routes []route
}

// NewRouter creates a router whose patterns are relative to prefix
func NewRouter(prefix string) *Router {
	return &Router{prefix: strings.TrimRight(prefix, "/")}
}

// Handle registers a handler for a method and pattern
func (r *Router) Handle(method, pattern string, handler HandlerFunc) {
	r.routes = append(r.routes, route{
		method:   strings.ToUpper(method),
		segments: splitPath(r.prefix + pattern),
		handler:  handler,
	})
}

// GET registers a GET handler
func (r *Router) GET(pattern string, handler HandlerFunc) { r.Handle(http.MethodGet, pattern, handler) }

// POST registers a POST handler
func (r *Router) POST(pattern string, handler HandlerFunc) { r.Handle(http.MethodPost, pattern, handler) }

// PUT registers a PUT handler
func (r *Router) PUT(pattern string, handler HandlerFunc) { r.Handle(http.MethodPut, pattern, handler) }

// Dispatch runs the first matching handler. Unknown paths get 404 and
// known paths with another method get 405.
func (r *Router) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	path := splitPath(req.Path)
	pathMatched := false

	for _, rt := range r.routes {
		params, ok := match(rt.segments, path)
		if !ok {
			continue
		}
		pathMatched = true
		if rt.method != req.Method {
			continue
		}
		if req.PathParams == nil {
			req.PathParams = map[string]string{}
		}
		for k, v := range params {
			req.PathParams[k] = v
		}
		return rt.handler(ctx, req)
	}

	if pathMatched {
		return JSON(http.StatusMethodNotAllowed, map[string]string{
			"error":   "Method not allowed",
			"message": req.Method + " is not supported on " + req.Path,
		})
	}
	return JSON(http.StatusNotFound, map[string]string{
		"error":   "Not found",
		"message": "no route for " + req.Method + " " + req.Path,
	})
}

func match(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if path[i] == "" {
				return nil, false
			}
			params[seg[1:]] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
