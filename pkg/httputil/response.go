package httputil

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all API responses
type Response struct {
	Status  string            `json:"status"`
	Data    interface{}       `json:"data,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	RespondWithStatus(c, http.StatusOK, data)
}

func RespondWithStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: StatusSuccess,
		Data:   data,
	})
}

// ErrorBody renders err as the error envelope. Errors that are not AppErrors become
// internal errors with a generic message.
func ErrorBody(err error) (int, Response) {
	appErr, ok := errors.As(err)
	if !ok {
		if stderrors.Is(err, context.DeadlineExceeded) {
			appErr = errors.NewTimeout(err)
		} else {
			appErr = errors.NewInternal(err)
		}
	}

	message := appErr.Message
	if appErr.Code == errors.ErrInternal {
		message = "internal server error"
	}

	return appErr.StatusCode(), Response{
		Status:  StatusError,
		Kind:    appErr.Kind(),
		Message: message,
		Fields:  appErr.Fields,
	}
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, err error) {
	status, body := ErrorBody(err)
	c.AbortWithStatusJSON(status, body)
}
