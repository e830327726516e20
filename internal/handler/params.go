package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/lifecycle"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

func fieldError(field, msg string) error {
	return errors.Validation(msg, map[string]string{field: msg})
}

// PathID parses a UUID path parameter.
func PathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fieldError(name, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// QueryDate parses an optional YYYY-MM-DD query value.
func QueryDate(c *gin.Context, name string) (schedule.Date, error) {
	raw := c.Query(name)
	if raw == "" {
		return schedule.Date{}, nil
	}
	d, err := schedule.ParseDate(raw)
	if err != nil {
		return schedule.Date{}, fieldError(name, err.Error())
	}
	return d, nil
}

func RequiredDate(c *gin.Context, name string) (schedule.Date, error) {
	if c.Query(name) == "" {
		return schedule.Date{}, fieldError(name, name+" is required")
	}
	return QueryDate(c, name)
}

// QueryWindow reads a window from a start/end pair. Both or neither must be set.
func QueryWindow(c *gin.Context, startName, endName string) (*schedule.Window, error) {
	start, end := c.Query(startName), c.Query(endName)
	switch {
	case start == "" && end == "":
		return nil, nil
	case start == "":
		return nil, fieldError(startName, startName+" is required with "+endName)
	case end == "":
		return nil, fieldError(endName, endName+" is required with "+startName)
	}
	w, err := schedule.ParseWindow(start, end)
	if err != nil {
		return nil, fieldError("timeWindow", err.Error())
	}
	return &w, nil
}

func QueryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(name, fmt.Sprintf("%s must be a number", name))
	}
	return n, nil
}

// BookingFilters reads the shared listing filters.
func BookingFilters(c *gin.Context) (model.BookingFilters, error) {
	var f model.BookingFilters
	var err error

	if f.RangeStart, err = QueryDate(c, "rangeStart"); err != nil {
		return f, err
	}
	if f.RangeEnd, err = QueryDate(c, "rangeEnd"); err != nil {
		return f, err
	}
	if raw := c.Query("providerId"); raw != "" {
		if f.ProviderID, err = uuid.Parse(raw); err != nil {
			return f, fieldError("providerId", "invalid providerId")
		}
	}
	if raw := c.Query("kind"); raw != "" {
		if f.Kind, err = model.ParseBookingKind(raw); err != nil {
			return f, err
		}
	}
	if raw := strings.ToLower(c.Query("status")); raw != "" {
		status := lifecycle.Status(raw)
		if !lifecycle.Appointment.Has(status) && !lifecycle.Shift.Has(status) {
			return f, fieldError("status", fmt.Sprintf("unknown status %q", raw))
		}
		f.Status = status
	}
	if raw := c.Query("upcoming"); raw != "" {
		upcoming, perr := strconv.ParseBool(raw)
		if perr != nil {
			return f, fieldError("upcoming", "upcoming must be true or false")
		}
		f.Upcoming = &upcoming
	}
	f.RequesterID = c.Query("requesterId")
	f.RequesterEmail = strings.TrimSpace(c.Query("requesterEmail"))
	f.DepartmentID = c.Query("department")
	f.Query = strings.TrimSpace(c.Query("q"))
	return f, nil
}
