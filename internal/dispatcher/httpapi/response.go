package httpapi

import (
	"github.com/gin-gonic/gin"
)

// errorEnvelope mirrors spec §6's error envelope exactly:
// { error: { code, message, details? } }.
type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// respondError writes the closed error envelope and aborts the gin chain,
// generalizing the teacher's handlers.ErrorResponse to the APIError type.
func respondError(c *gin.Context, err *APIError) {
	if rid, ok := c.Get(requestIDKey); ok {
		if err.Details == nil {
			err.Details = map[string]interface{}{}
		}
		err.Details["request_id"] = rid
	}
	c.AbortWithStatusJSON(err.HTTPStatus, errorEnvelope{Error: err})
}
