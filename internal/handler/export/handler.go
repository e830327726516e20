package export

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/internal/handler"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/service/export"
	"github.com/jwalitptl/scheduling-api/pkg/auth"
)

type Handler struct {
	service *export.Service
}

func NewHandler(service *export.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authMW *middleware.AuthMiddleware) {
	r.GET("/schedules/export", authMW.Authenticate(), authMW.RequireRole(auth.RoleAdmin), h.ExportShifts)
}

func (h *Handler) ExportShifts(c *gin.Context) {
	start, err := handler.RequiredDate(c, "rangeStart")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	end, err := handler.RequiredDate(c, "rangeEnd")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var buf bytes.Buffer
	if _, err := h.service.WriteShifts(c.Request.Context(), &buf, start, end, middleware.Actor(c)); err != nil {
		handler.Fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(start, end)))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}
