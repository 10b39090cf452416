package httputil

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/physio-api/pkg/errors"
)

// Response wraps successful API responses
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// ErrorBody is the error payload. Error is always present; Kind is additive.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithError converts err into its HTTP status and aborts the chain.
// Errors that are not AppErrors are treated as store failures.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	status := appErr.StatusCode()
	if status >= 500 {
		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
	}

	c.AbortWithStatusJSON(status, ErrorBody{
		Error: appErr.Message,
		Kind:  appErr.Kind(),
	})
}
