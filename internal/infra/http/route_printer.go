package http

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// RouteInfo holds information about a registered route.
type RouteInfo struct {
	Method string
	Path   string
}

// CollectRoutes walks the router and returns its routes sorted by path,
// then method.
func CollectRoutes(router Router) []RouteInfo {
	var routes []RouteInfo
	_ = router.Walk(func(method, path string) error {
		routes = append(routes, RouteInfo{Method: method, Path: path})
		return nil
	})

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	return routes
}

// PrintRoutes writes a route table to w.
func PrintRoutes(w io.Writer, routes []RouteInfo) {
	fmt.Fprintf(w, "%-8s %s\n", "METHOD", "PATH")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, r := range routes {
		fmt.Fprintf(w, "%-8s %s\n", r.Method, r.Path)
	}
	fmt.Fprintf(w, "%d routes\n", len(routes))
}
