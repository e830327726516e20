package provider

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/internal/handler"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/service/availability"
	"github.com/jwalitptl/scheduling-api/pkg/httputil"
)

// Handler serves the read side: directory listings and availability.
type Handler struct {
	service *availability.Service
}

func NewHandler(service *availability.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/departments", h.ListDepartments)

	providers := r.Group("/providers")
	{
		providers.GET("", h.ListProviders)
		providers.GET("/:id", h.GetProvider)
		providers.GET("/:id/slots", middleware.NoStore(), h.ResolveSlots)
	}

	r.GET("/staff/available", middleware.NoStore(), h.AvailableStaff)
}

func (h *Handler) ListDepartments(c *gin.Context) {
	departments, err := h.service.ListDepartments(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, departments)
}

func (h *Handler) ListProviders(c *gin.Context) {
	providers, err := h.service.ListProviders(c.Request.Context(), c.Query("department"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, providers)
}

func (h *Handler) GetProvider(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	provider, err := h.service.GetProvider(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, provider)
}

func (h *Handler) ResolveSlots(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	date, err := handler.RequiredDate(c, "date")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	slots, err := h.service.ResolveSlots(c.Request.Context(), id, date)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}

// AvailableStaff answers in department mode until both a date and a window are given.
func (h *Handler) AvailableStaff(c *gin.Context) {
	date, err := handler.QueryDate(c, "date")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	window, err := handler.QueryWindow(c, "startTime", "endTime")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if date.IsZero() {
		window = nil
	}

	result, err := h.service.ResolveStaff(c.Request.Context(), availability.StaffQuery{
		Date:         date,
		Window:       window,
		DepartmentID: c.Query("department"),
	})
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}
