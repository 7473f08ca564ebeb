package payload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, register func(r *gin.Engine)) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func TestControlCompositeDevice(t *testing.T) {
	var got CompositeDeviceRequest
	c := newTestServer(t, func(r *gin.Engine) {
		r.POST(EndpointCompositeDeviceControl, func(ctx *gin.Context) {
			require.NoError(t, ctx.BindJSON(&got))
			ctx.JSON(http.StatusOK, gin.H{"success": true})
		})
	})

	require.NoError(t, c.ControlCompositeDevice(context.Background(), "blackBody", 20000))
	assert.Equal(t, CompositeDeviceRequest{Device: "blackBody", Value: 20000}, got)
}

func TestSendRejected(t *testing.T) {
	c := newTestServer(t, func(r *gin.Engine) {
		r.POST(EndpointSetLaserPower, func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"success": false, "message": "light source not connected"})
		})
	})

	err := c.SetDeviceValue(context.Background(), EndpointSetLaserPower, "power", 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "light source not connected")
}

func TestSendUnexpectedStatus(t *testing.T) {
	c := newTestServer(t, func(r *gin.Engine) {
		r.GET(EndpointDevicesStatus, func(ctx *gin.Context) {
			ctx.String(http.StatusInternalServerError, "boom")
		})
	})

	_, err := c.DevicesStatus(context.Background())
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
}

func TestSendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second)
	err := c.ControlPulsedLaser(context.Background(), PulsedLaserRequest{Operation: "toggle"})
	assert.True(t, errors.Is(err, ErrUnreachable), "got %v", err)
}

func TestPulsedLaserTemperature(t *testing.T) {
	c := newTestServer(t, func(r *gin.Engine) {
		r.GET(EndpointPulsedLaserTemperature, func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"temperature": 24.5}})
		})
	})

	temp, err := c.PulsedLaserTemperature(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 24.5, temp, 1e-9)
}

func TestDevicesStatus(t *testing.T) {
	c := newTestServer(t, func(r *gin.Engine) {
		r.GET(EndpointDevicesStatus, func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"light_source": true, "ccd_camera": false}})
		})
	})

	status, err := c.DevicesStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"light_source": true, "ccd_camera": false}, status)
}
