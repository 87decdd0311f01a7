package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/loan-ledger/internal/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyChecks(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var wrapper struct {
		Data handler.HealthStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wrapper))
	return wrapper.Data.Checks
}

func TestHealthHandler_Health(t *testing.T) {
	router := mux.NewRouter()
	handler.NewHealthHandler(nil, nil, 0).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHealthHandler_ReadyWithoutBackends(t *testing.T) {
	router := mux.NewRouter()
	handler.NewHealthHandler(nil, nil, time.Second).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	checks := readyChecks(t, w)
	assert.Equal(t, "disabled", checks["database"])
	assert.Equal(t, "disabled", checks["redis"])
}

func TestHealthHandler_ReadyReportsUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	router := mux.NewRouter()
	handler.NewHealthHandler(nil, client, time.Second).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := readyChecks(t, w)
	assert.Equal(t, "disabled", checks["database"])
	assert.Contains(t, checks["redis"], "failed")
}
