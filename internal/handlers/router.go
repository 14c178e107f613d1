package handlers

import (
	"sync"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/middleware"
	"fleetwatch/internal/models"
	"fleetwatch/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validatorOnce sync.Once

// useJSONFieldNames makes gin's binding errors name fields as they appear in
// request bodies.
func useJSONFieldNames() {
	validatorOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(service.JSONFieldName)
		}
	})
}

type Router struct {
	GPS     *GPSHandler
	Auth    *AuthHandler
	Users   *UserHandler
	Health  *HealthHandler
	Tokens  middleware.TokenParser
	Limiter *middleware.IPRateLimiter

	DeviceKeyHeader string
	DeviceKey       string
}

// Engine builds a gin engine with the standard middleware chain and every
// route mounted under /api.
func (rt Router) Engine() *gin.Engine {
	r := gin.New()
	rt.Install(r)
	return r
}

// Install adds the standard middleware chain to r and mounts the routes.
// Middleware registered on r beforehand, such as CORS, runs first.
func (rt Router) Install(r *gin.Engine) {
	useJSONFieldNames()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(logging.GinLogger())
	r.Use(metrics.Middleware())

	rt.Mount(r)
}

func (rt Router) Mount(r *gin.Engine) {
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.GET("/health", rt.Health.Health)

	public := api.Group("")
	if rt.Limiter != nil {
		public.Use(middleware.IPRateLimitMiddleware(rt.Limiter))
	}
	public.POST("/register", rt.Auth.Register)
	public.POST("/login", rt.Auth.Login)

	api.POST("/gps", middleware.DeviceKey(rt.DeviceKeyHeader, rt.DeviceKey), rt.GPS.Ingest)

	authed := api.Group("", middleware.JWTAuth(rt.Tokens))
	authed.GET("/verify-token", rt.Auth.VerifyToken)
	authed.GET("/users/me", rt.Users.Me)

	authed.GET("/gps", rt.GPS.List)
	authed.GET("/gps/latest", rt.GPS.Latest)
	authed.GET("/gps/devices", rt.GPS.Devices)
	authed.GET("/gps/map", rt.GPS.Map)
	authed.GET("/gps/export", middleware.RequireRole(models.RoleOperator), rt.GPS.Export)

	admin := authed.Group("", middleware.RequireRole(models.RoleAdmin))
	admin.GET("/users", rt.Users.List)
	admin.PUT("/users/:id/role", rt.Users.ChangeRole)
	admin.GET("/system/stats", rt.Health.SystemStats)
}
