package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/distribo/services/recouvrement/internal/recovery"
	"example.com/distribo/services/recouvrement/internal/repositories"
	"example.com/distribo/services/recouvrement/internal/services"
)

func respondWith(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RespondError(c, err)
	return recorder
}

func TestRespondErrorMissingConfiguration(t *testing.T) {
	recorder := respondWith(t, recovery.ErrNotConfigured)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"success":false`)
	require.Contains(t, recorder.Body.String(), "administrator")
}

func TestRespondErrorNotFound(t *testing.T) {
	recorder := respondWith(t, repositories.ErrNotFound)

	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Contains(t, recorder.Body.String(), "NOT_FOUND")
}

func TestRespondErrorLastGlobalSetting(t *testing.T) {
	recorder := respondWith(t, services.ErrLastGlobalSetting)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Contains(t, recorder.Body.String(), "VALIDATION_ERROR")
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	recorder := respondWith(t, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	require.NotContains(t, recorder.Body.String(), "connection refused")
	require.Contains(t, recorder.Body.String(), "INTERNAL_ERROR")
}
