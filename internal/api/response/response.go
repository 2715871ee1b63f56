package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every error reply.
type Response struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Extras  any  `json:"extras"`
}

func NewResponse(success bool, code int, extras any) Response {
	return Response{
		Success: success,
		Code:    code,
		Extras:  extras,
	}
}

// SuccessResponse returns a 200 JSON response with body as-is
func SuccessResponse(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

// CreatedResponse returns a 201 with an empty body
func CreatedResponse(c *gin.Context) {
	c.Status(http.StatusCreated)
}

// ErrorResponse aborts the request with the error envelope
func ErrorResponse(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(
		code,
		NewResponse(
			false,
			code,
			NewError(message, nil),
		))
}

// ValidationErrorResponse aborts with 422 and per-field failures
func ValidationErrorResponse(c *gin.Context, message string, fields map[string]string) {
	c.AbortWithStatusJSON(
		http.StatusUnprocessableEntity,
		NewResponse(
			false,
			http.StatusUnprocessableEntity,
			NewError(message, fields),
		))
}
