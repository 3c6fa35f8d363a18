package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/video-gateway/internal/platform/apierr"
)

func respond(t *testing.T, err error) (int, ErrorBody) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondErr(c, err)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestRespondErrMapsTypedErrors(t *testing.T) {
	code, body := respond(t, apierr.NotFound("file_not_found", errors.New("File not found")))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "File not found", body.Error)
	assert.Equal(t, "file_not_found", body.Code)

	code, body = respond(t, apierr.RepositoryUnavailable())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "repository_unavailable", body.Code)
}

func TestRespondErrRedactsServerErrors(t *testing.T) {
	ExposeInternalErrors(false)
	code, body := respond(t, errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal Server Error", body.Error)
	assert.Equal(t, "internal_error", body.Code)

	ExposeInternalErrors(true)
	defer ExposeInternalErrors(false)
	_, body = respond(t, errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	assert.Contains(t, body.Error, "connection refused")
}
