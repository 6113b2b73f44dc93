package gate

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionChecker reports whether a request carries a valid session cookie.
type SessionChecker interface {
	Authenticated(r *http.Request) bool
}

// SessionCheckerFunc adapts a function to SessionChecker.
type SessionCheckerFunc func(r *http.Request) bool

func (f SessionCheckerFunc) Authenticated(r *http.Request) bool {
	return f(r)
}

// Middleware enforces the route table before any handler runs. Requests
// outside the table pass through without a session lookup.
func Middleware(table RouteTable, checker SessionChecker, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		requestPath := c.Request.URL.Path
		if !table.Covers(requestPath) {
			c.Next()
			return
		}

		authenticated := checker != nil && checker.Authenticated(c.Request)
		decision := table.Evaluate(requestPath, c.Request.URL.Query(), authenticated)
		if !decision.Redirect() {
			c.Next()
			return
		}

		logger.Debug("request gated",
			zap.String("path", requestPath),
			zap.String("rule", string(decision.Rule)),
			zap.String("location", decision.Location),
			zap.Bool("authenticated", authenticated),
		)
		c.Redirect(http.StatusTemporaryRedirect, decision.Location)
		c.Abort()
	}
}
