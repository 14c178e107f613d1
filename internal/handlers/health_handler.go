package handlers

import (
	"net/http"
	"time"

	"fleetwatch/internal/service"
	"fleetwatch/pkg/database"
	pkgredis "fleetwatch/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db             *gorm.DB
	redis          *redis.Client
	gps            service.GPSService
	workersEnabled bool
}

// NewHealthHandler accepts a nil redis client when caching is disabled.
func NewHealthHandler(db *gorm.DB, redisClient *redis.Client, gps service.GPSService, workersEnabled bool) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, gps: gps, workersEnabled: workersEnabled}
}

func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	services := gin.H{"database": "connected", "redis": "disabled"}

	if err := database.Ping(h.db); err != nil {
		status = http.StatusServiceUnavailable
		services["database"] = "unavailable"
		log.Error().Err(err).Msg("health check: database unreachable")
	}
	if h.redis != nil {
		services["redis"] = "connected"
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			services["redis"] = "unavailable"
		}
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

// SystemStats reports store size, redis INFO fields and worker state.
func (h *HealthHandler) SystemStats(c *gin.Context) {
	ctx := c.Request.Context()

	fixes, err := h.gps.Count(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	devices, err := h.gps.Devices(ctx, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	var redisStats map[string]string
	if h.redis != nil {
		if redisStats, err = pkgredis.GetStats(ctx, h.redis); err != nil {
			log.Warn().Err(err).Msg("failed to read redis stats")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"database": gin.H{
			"gps_fixes": fixes,
			"devices":   len(devices),
		},
		"redis": redisStats,
		"workers": gin.H{
			"activity_enabled": h.workersEnabled,
		},
	})
}
