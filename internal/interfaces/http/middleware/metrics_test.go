package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesplan/backend/internal/infrastructure/telemetry"
)

type recordedRequest struct {
	method, route, status string
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeObserver) ObserveHTTP(method, route, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method, route, status})
}

func TestHTTPMetrics_LabelsByRoutePattern(t *testing.T) {
	obs := &fakeObserver{}
	router := gin.New()
	router.Use(HTTPMetrics(obs))
	router.GET("/api/v1/items/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, path := range []string{"/api/v1/items/1", "/api/v1/items/2", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, obs.seen, 3)
	assert.Equal(t, recordedRequest{"GET", "/api/v1/items/:id", "204"}, obs.seen[0])
	assert.Equal(t, obs.seen[0], obs.seen[1])
	assert.Equal(t, recordedRequest{"GET", unmatchedRoute, "404"}, obs.seen[2])
}

func TestHTTPMetrics_Prometheus(t *testing.T) {
	m := telemetry.NewMetrics()
	router := gin.New()
	router.Use(HTTPMetrics(m))
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	count, err := testutil.GatherAndCount(m.Registry(), "salesplan_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `salesplan_http_requests_total{method="GET",route="/health",status="200"} 2`)
}

func TestHTTPMetrics_NilObserver(t *testing.T) {
	router := gin.New()
	router.Use(HTTPMetrics(nil))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
