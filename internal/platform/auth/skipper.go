package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists routes reachable without passing the gate: health checks
// and the two login entry points.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/db":    true,
	"/login":        true,
	"/api/v1/login": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. Pass it as JWTConfig.Skipper.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

// IsPublicPath reports whether path bypasses the gate.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
