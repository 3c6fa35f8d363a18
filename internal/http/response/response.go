package response

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/video-gateway/internal/platform/apierr"
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var exposeInternal atomic.Bool

// ExposeInternalErrors makes 5xx bodies carry the underlying error text.
// Only development mode turns this on.
func ExposeInternalErrors(v bool) { exposeInternal.Store(v) }

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && (status < 500 || exposeInternal.Load()) {
		msg = err.Error()
	}
	if msg == "" {
		msg = "unknown error"
	}
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorBody{Error: msg, Code: code})
}

// RespondErr maps err through apierr; anything untyped is a 500.
func RespondErr(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		RespondError(c, apierr.StatusOf(ae), apierr.CodeOf(ae), ae)
		return
	}
	RespondError(c, http.StatusInternalServerError, "internal_error", err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
