package ginlogger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newRouter(logger logrus.FieldLogger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(logger))
	r.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/cameras/:id/start", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.POST("/devices/:kind", func(c *gin.Context) {
		c.String(http.StatusBadGateway, "payload unreachable")
		_ = c.Error(errors.New("payload unreachable"))
	})
	return r
}

func TestLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := newRouter(logger)

	tests := []struct {
		method, path string
		want         logrus.Level
	}{
		{http.MethodGet, "/status", logrus.DebugLevel},
		{http.MethodPost, "/cameras/pod/start", logrus.WarnLevel},
		{http.MethodPost, "/devices/blackBody", logrus.ErrorLevel},
		{http.MethodGet, "/nowhere", logrus.WarnLevel},
	}
	for _, tt := range tests {
		hook.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))
		e := hook.LastEntry()
		if e == nil {
			t.Fatalf("%s: nothing logged", tt.path)
		}
		if e.Level != tt.want {
			t.Errorf("%s: level %s, want %s", tt.path, e.Level, tt.want)
		}
	}
}

func TestRouteParams(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := newRouter(logger)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cameras/pod/start", nil))
	e := hook.LastEntry()
	if e == nil {
		t.Fatal("nothing logged")
	}
	if e.Data["route"] != "/cameras/:id/start" {
		t.Errorf("route field %v", e.Data["route"])
	}
	if e.Data["id"] != "pod" {
		t.Errorf("id field %v", e.Data["id"])
	}
	if e.Data["status"] != http.StatusConflict {
		t.Errorf("status field %v", e.Data["status"])
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/devices/visibleLight", nil))
	e = hook.LastEntry()
	if e.Data["kind"] != "visibleLight" || e.Message != "payload unreachable" {
		t.Errorf("unexpected entry %v %q", e.Data, e.Message)
	}
}
