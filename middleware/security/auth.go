package security

import (
	"net/http"
	"strings"

	"ChatCore/tools/errs"

	"github.com/gin-gonic/gin"
)

// context key holding the raw credential of the request
const PPCtxAuthKey = "authorization"

type Options struct {
	HeaderToken               string // "authorization" when empty
	QueryToken                string // query parameter, used by websocket clients that cannot set headers
	EnableAuthorizationBearer bool
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               PPCtxAuthKey,
		QueryToken:                "token",
		EnableAuthorizationBearer: true,
	}
}

// ExtractToken reads the credential from the header, the bearer
// Authorization header or the query string, in that order.
func ExtractToken(c *gin.Context, opts *Options) string {
	if opts == nil {
		opts = DefaultOptions()
	}
	token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
	if opts.EnableAuthorizationBearer && strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	if token == "" && opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[len("bearer "):])
		}
	}
	if token == "" && opts.QueryToken != "" {
		token = strings.TrimSpace(c.Query(opts.QueryToken))
	}
	return token
}

// Middleware rejects requests without a credential. The credential itself
// is validated by the handler through the auth service.
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := ExtractToken(c, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthenticated.WithDetail("missing credential"))
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Next()
	}
}

// Credential returns the credential stored by Middleware.
func Credential(c *gin.Context) string {
	return c.GetString(PPCtxAuthKey)
}
