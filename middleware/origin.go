package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// Origin rejects websocket upgrades on path from origins not in allowed.
// An empty list allows every origin.
func Origin(path string, allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && c.Request.URL.Path == path && !OriginAllowed(c.Request, allowed) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// OriginAllowed reports whether r may upgrade. Requests without an Origin
// header come from non-browser clients and are allowed.
func OriginAllowed(r *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	o := r.Header.Get("Origin")
	return o == "" || slices.Contains(allowed, o)
}
