package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest       = 40000
	CodeRunNotFound      = 40401
	CodeInternalServer   = 50000
	CodeNoSourceProducts = 50001
)

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{
		Error: message,
		Code:  code,
	})
}
