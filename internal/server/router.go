package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/cordis/internal/auth"
	"github.com/MarcoPoloResearchLab/cordis/internal/diagnostics"
	"github.com/MarcoPoloResearchLab/cordis/internal/gate"
	"github.com/MarcoPoloResearchLab/cordis/internal/profiles"
	"github.com/MarcoPoloResearchLab/cordis/internal/roles"
	"github.com/MarcoPoloResearchLab/cordis/internal/routing"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionContextKey     = "cordis_session"
	defaultSessionTimeout = 3 * time.Second
)

var (
	errMissingSessionStore   = errors.New("session store dependency required")
	errMissingProfileService = errors.New("profile service dependency required")
	errMissingResolver       = errors.New("profile resolver dependency required")
)

type Dependencies struct {
	Sessions       *auth.SessionStore
	Profiles       *profiles.Service
	Resolver       routing.ProfileResolver
	DevIdentities  *auth.DevIdentityProvider
	Diagnostics    *diagnostics.Reporter
	RouteTable     *gate.RouteTable
	CookieOptions  auth.CookieOptions
	AllowedOrigins []string
	SessionTimeout time.Duration
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionStore
	}
	if deps.Profiles == nil {
		return nil, errMissingProfileService
	}
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sessionTimeout := deps.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = defaultSessionTimeout
	}
	routeTable := gate.DefaultRouteTable()
	if deps.RouteTable != nil {
		routeTable = *deps.RouteTable
	}
	cookieOptions := deps.CookieOptions
	if cookieOptions.Name == "" {
		cookieOptions.Name = deps.Sessions.CookieName()
	}

	ProvisionProfiles(deps.Sessions, deps.Profiles, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}
	router.Use(gate.Middleware(routeTable, deps.Sessions, logger))

	handler := &httpHandler{
		sessions:       deps.Sessions,
		profiles:       deps.Profiles,
		resolver:       deps.Resolver,
		devIdentities:  deps.DevIdentities,
		diagnostics:    deps.Diagnostics,
		cookieOptions:  cookieOptions,
		sessionTimeout: sessionTimeout,
		clock:          clock,
		logger:         logger,
	}

	router.GET("/healthz", handler.handleHealth)

	router.GET(routing.RoleRouterPath, handler.handleRoleRouter)
	router.GET(routing.UserDashboardPath, handler.handleDashboard)
	router.GET(routing.AdminDashboardPath, handler.handleDashboard)
	router.GET(routing.ManagerDashboardPath, handler.handleDashboard)

	router.POST("/auth/signout", handler.handleSignOut)
	if deps.DevIdentities != nil {
		router.POST("/auth/dev/login", handler.handleDevLogin)
	}

	router.GET("/api/session", handler.handleSession)

	protected := router.Group("/")
	protected.Use(handler.requireSession)
	protected.POST("/auth/refresh", handler.handleRefresh)
	protected.GET("/api/session/events", handler.handleSessionEvents)
	protected.GET("/api/profile", handler.handleGetProfile)
	protected.PATCH("/api/profile", handler.handleUpdateProfile)

	admin := protected.Group("/api/admin")
	admin.Use(handler.requireRole(roles.Admin))
	admin.PUT("/profiles/:id/role", handler.handleAssignRole)

	if deps.Diagnostics != nil {
		router.GET("/debug/auth", handler.handleDiagnostics)
	}

	return router, nil
}

type httpHandler struct {
	sessions       *auth.SessionStore
	profiles       *profiles.Service
	resolver       routing.ProfileResolver
	devIdentities  *auth.DevIdentityProvider
	diagnostics    *diagnostics.Reporter
	cookieOptions  auth.CookieOptions
	sessionTimeout time.Duration
	clock          func() time.Time
	logger         *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) requireSession(c *gin.Context) {
	session := h.sessions.SessionFromRequest(c.Request)
	if session == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, session)
	c.Next()
}

// requireRole resolves the caller's profile and rejects callers whose
// classified role differs. An unavailable profile classifies as the default role.
func (h *httpHandler) requireRole(role roles.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessionFromContext(c)
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		resolution := h.resolver.Resolve(c.Request.Context(), session.Identity.ID)
		if resolution.Role() != role {
			h.logger.Warn("role requirement not met",
				zap.String("identity_id", session.Identity.ID),
				zap.String("required_role", string(role)),
				zap.String("role", string(resolution.Role())),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) *auth.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := value.(*auth.Session)
	return session
}
