package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyhive/studyhive/internal/apperr"
)

// respondError translates a service error into the HTTP answer. Internal
// failures get a generic body; the service layer already logged the cause.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindBadRequest:
		status = http.StatusBadRequest
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": apperr.MessageOf(err)})
}

// requesterID returns the authenticated user ID, empty for anonymous
// requests on optional-auth routes.
func requesterID(c *gin.Context) string {
	return c.GetString("user_id")
}
