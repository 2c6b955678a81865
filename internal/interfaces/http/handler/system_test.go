package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err      error
	deadline bool
}

func (p *fakePinger) Ping(ctx context.Context) error {
	_, p.deadline = ctx.Deadline()
	return p.err
}

func TestNewSystemHandler(t *testing.T) {
	h := NewSystemHandler("salesplan", "1.2.3")
	assert.False(t, h.startTime.IsZero())
	assert.Equal(t, 2*time.Second, h.pingTimeout)
}

func TestSystemHandler_Health(t *testing.T) {
	t.Run("without database", func(t *testing.T) {
		c, w := newTestContext()
		NewSystemHandler("salesplan", "dev").Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "unchecked", resp.Database)
	})

	t.Run("database reachable", func(t *testing.T) {
		db := &fakePinger{}
		c, w := newTestContext()
		NewSystemHandler("salesplan", "dev", WithDatabase(db, time.Second)).Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, db.deadline)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "connected", resp.Database)
	})

	t.Run("database unreachable", func(t *testing.T) {
		c, w := newTestContext()
		NewSystemHandler("salesplan", "dev", WithDatabase(&fakePinger{err: errors.New("login failed")}, 0)).Health(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "unreachable", resp.Database)
		assert.NotContains(t, w.Body.String(), "login failed")
	})
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	c, w := newTestContext()
	NewSystemHandler("salesplan", "1.2.3").GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "salesplan", data["name"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.Equal(t, runtime.Version(), data["go_version"])
	assert.NotEmpty(t, data["uptime"])
}

func TestSystemHandler_Ping(t *testing.T) {
	c, w := newTestContext()
	NewSystemHandler("salesplan", "dev").Ping(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pong", data["message"])

	_, err := time.Parse(time.RFC3339, data["timestamp"].(string))
	assert.NoError(t, err)
}
