package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"xdao.co/titlegate/errkind"
	"xdao.co/titlegate/logger"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondKind maps err onto the public taxonomy. Only validation messages
// reach the caller verbatim; other diagnostics are logged.
func respondKind(c *gin.Context, log *logger.Logger, err error) {
	kind := errkind.KindOf(err).Public()
	status, msg := statusFor(kind)
	if kind == errkind.ValidationFailed {
		msg = errkind.MessageOf(err)
	}

	kv := []any{"kind", errkind.KindOf(err), "route", c.FullPath(), "requestId", requestID(c), "error", err}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", kv...)
	} else {
		log.Warn("request rejected", kv...)
	}
	respondError(c, status, string(kind), msg)
}

func statusFor(kind errkind.Kind) (int, string) {
	switch kind {
	case errkind.ValidationFailed:
		return http.StatusBadRequest, "invalid request"
	case errkind.Unauthorized:
		return http.StatusForbidden, "operation not permitted for this organization"
	case errkind.NotFound:
		return http.StatusNotFound, "not found"
	case errkind.UpstreamUnavailable:
		return http.StatusServiceUnavailable, "ledger or content store unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
