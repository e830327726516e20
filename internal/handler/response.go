package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/httputil"
	"github.com/jwalitptl/scheduling-api/pkg/validator"
)

// Fail records err for the error middleware and writes the error envelope.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	httputil.RespondWithError(c, err)
}

// BindJSON decodes the body into req and runs its validate tags.
func BindJSON(c *gin.Context, v validator.Validator, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errors.NewBadRequest("invalid request body", err)
	}
	return v.Validate(req)
}
