package handlers

import (
	"strconv"
	"strings"
	"time"

	"fleetwatch/internal/repository"
	"fleetwatch/internal/service"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// parseFilter reads device, start, end and limit from the query string.
func parseFilter(c *gin.Context) (repository.GPSFilter, error) {
	filter := repository.GPSFilter{DeviceID: strings.TrimSpace(c.Query("device"))}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, &service.ValidationError{Field: "limit", Message: "limit must be a positive integer"}
		}
		filter.Limit = limit
	}

	var err error
	if filter.Start, err = parseDate(c, "start"); err != nil {
		return filter, err
	}
	if filter.End, err = parseDate(c, "end"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseDate(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, &service.ValidationError{Field: name, Message: name + " must be a date in YYYY-MM-DD format"}
	}
	return &t, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Field: name, Message: name + " must be a positive integer"}
	}
	return uint(id), nil
}

