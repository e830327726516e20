package booking

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/internal/handler"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/service/booking"
	"github.com/jwalitptl/scheduling-api/pkg/auth"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/httputil"
	"github.com/jwalitptl/scheduling-api/pkg/validator"
)

type Handler struct {
	service   *booking.Service
	validator validator.Validator
}

func NewHandler(service *booking.Service, v validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

// RegisterRoutes mounts the booking routes. Reads and creation are open, but requester
// details are only shown to staff, admins and the requester. Status changes need a
// token and hard deletes need an admin token.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authMW *middleware.AuthMiddleware) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", authMW.OptionalAuthenticate(), h.ListBookings)
		bookings.GET("/summary", authMW.OptionalAuthenticate(), h.Summary)
		bookings.GET("/:id", authMW.OptionalAuthenticate(), h.GetBooking)
		bookings.PATCH("/:id", authMW.Authenticate(), h.UpdateStatus)
		bookings.DELETE("/:id", authMW.Authenticate(), authMW.RequireRole(auth.RoleAdmin), h.DeleteBooking)
	}

	r.GET("/calendar", authMW.OptionalAuthenticate(), h.Calendar)
}

// visible strips requester data the caller may not see.
func visible(c *gin.Context, b *model.Booking) *model.Booking {
	switch middleware.Role(c) {
	case auth.RoleAdmin, auth.RoleStaff:
		return b
	}
	if actor := middleware.Actor(c); actor != "" && actor == b.RequesterID {
		return b
	}
	return b.Redacted()
}

func visibleAll(c *gin.Context, bookings []*model.Booking) []*model.Booking {
	out := make([]*model.Booking, len(bookings))
	for i, b := range bookings {
		out[i] = visible(c, b)
	}
	return out
}

// listingFilters parses the filters and refuses anonymous lookups of one person's
// bookings.
func listingFilters(c *gin.Context) (model.BookingFilters, error) {
	filters, err := handler.BookingFilters(c)
	if err != nil {
		return filters, err
	}
	if filters.IdentifiesRequester() && middleware.Actor(c) == "" {
		return filters, errors.Unauthorized(nil)
	}
	return filters, nil
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req model.CreateBookingRequest
	if err := handler.BindJSON(c, h.validator, &req); err != nil {
		handler.Fail(c, err)
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = middleware.Actor(c)
	}

	alloc, err := req.ToAllocation()
	if err != nil {
		handler.Fail(c, err)
		return
	}

	b, err := h.service.Allocate(c.Request.Context(), alloc)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, b)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	b, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, visible(c, b))
}

func (h *Handler) ListBookings(c *gin.Context) {
	filters, err := listingFilters(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	bookings, err := h.service.List(c.Request.Context(), &filters)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, visibleAll(c, bookings))
}

func (h *Handler) Summary(c *gin.Context) {
	filters, err := listingFilters(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), &filters)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summary)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.UpdateBookingStatusRequest
	if err := handler.BindJSON(c, h.validator, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	b, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status, middleware.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, b)
}

func (h *Handler) DeleteBooking(c *gin.Context) {
	id, err := handler.PathID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, middleware.Actor(c)); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Calendar defaults to the current month.
func (h *Handler) Calendar(c *gin.Context) {
	today := h.service.Today()
	year, err := handler.QueryInt(c, "year", today.Year)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	month, err := handler.QueryInt(c, "month", int(today.Month))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	filters, err := listingFilters(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	grid, err := h.service.Calendar(c.Request.Context(), year, time.Month(month), filters)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	for i := range grid.Days {
		grid.Days[i].Bookings = visibleAll(c, grid.Days[i].Bookings)
	}
	httputil.RespondWithSuccess(c, grid)
}
