package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/mossy-p/lifecounter/internal/apperr"
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AbortWithError answers with err's status and stops the chain. err is
// recorded on the context for the request logger.
func AbortWithError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(code), ErrorBody{Error: ErrorDetail{
		Code:    apperr.Slug(code),
		Message: apperr.MessageOf(err),
	}})
}
