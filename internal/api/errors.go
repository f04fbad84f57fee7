package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/logger"
)

var log = logger.New("api")

var statusByCode = map[apperr.Code]int{
	apperr.CodeValidation:    http.StatusBadRequest,
	apperr.CodeAuthorization: http.StatusForbidden,
	apperr.CodeNotFound:      http.StatusNotFound,
	apperr.CodeConflict:      http.StatusConflict,
	apperr.CodeFetch:         http.StatusBadGateway,
	apperr.CodeTransport:     http.StatusBadGateway,
	apperr.CodeTimeout:       http.StatusGatewayTimeout,
	apperr.CodeInternal:      http.StatusInternalServerError,
}

// respondError writes err with the status matching its code
func respondError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err), "code": code})
}
