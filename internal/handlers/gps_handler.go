package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"fleetwatch/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// ingestFields are the body keys mapped onto GPSFix columns. Anything else a
// tracker sends is kept in GPSFix.Extra.
var ingestFields = map[string]bool{
	"device_id": true, "latitude": true, "longitude": true, "altitude": true,
	"speed": true, "satellites": true, "hdop": true, "battery": true,
	"timestamp": true, "date": true,
}

type GPSHandler struct {
	service service.GPSService
	now     func() time.Time
}

func NewGPSHandler(service service.GPSService) *GPSHandler {
	return &GPSHandler{service: service, now: time.Now}
}

// Ingest godoc
// @Summary Store one GPS fix sent by a tracker
// @Tags GPS
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 400,401,500 {object} map[string]string
// @Router /gps [post]
func (h *GPSHandler) Ingest(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		respondBindError(c, err)
		return
	}
	req.Extra = extraFields(c)

	fix, err := h.service.Ingest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "GPS data stored",
		"id":      fix.ID,
	})
}

func extraFields(c *gin.Context) map[string]interface{} {
	raw, ok := c.Get(gin.BodyBytesKey)
	if !ok {
		return nil
	}
	body, ok := raw.([]byte)
	if !ok {
		return nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil
	}
	for key := range fields {
		if ingestFields[key] {
			delete(fields, key)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// List godoc
// @Summary Filtered GPS fixes, newest first
// @Tags GPS
// @Param device query string false "device id"
// @Param start query string false "first day, YYYY-MM-DD"
// @Param end query string false "last day, YYYY-MM-DD"
// @Param limit query int false "max rows (default 100)"
// @Router /gps [get]
func (h *GPSHandler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	fixes, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fixes)
}

// Latest returns the newest fix of every device.
func (h *GPSHandler) Latest(c *gin.Context) {
	fixes, err := h.service.Latest(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fixes)
}

// Devices returns per-device counts and first/last report times.
func (h *GPSHandler) Devices(c *gin.Context) {
	summaries, err := h.service.Devices(c.Request.Context(), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// Map godoc
// @Summary Map scene for the filtered fixes
// @Description Devices listed in tracked are drawn with their full recent path, others with their newest point.
// @Tags GPS
// @Param tracked query string false "comma separated device ids"
// @Router /gps/map [get]
func (h *GPSHandler) Map(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	scene, err := h.service.MapScene(c.Request.Context(), service.MapQuery{
		Filter:  filter,
		Tracked: splitList(c.Query("tracked")),
	}, h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scene)
}

// Export godoc
// @Summary Download filtered fixes as csv or xlsx
// @Tags GPS
// @Param format query string false "csv (default) or xlsx"
// @Router /gps/export [get]
func (h *GPSHandler) Export(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	file, err := h.service.Export(c.Request.Context(), c.DefaultQuery("format", "csv"), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+file.Filename)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
