package ginlogger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// New returns a gin middleware that logs every request through logger. The
// entry carries the matched route and its path parameters (camera id, device
// kind, record index) so requests for one camera can be followed in the log.
// 5xx responses and handler errors log at error level, 4xx at warning level,
// everything else at debug level.
func New(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"status":    status,
			"latencyMs": time.Since(start).Milliseconds(),
			"method":    c.Request.Method,
			"route":     route(c),
			"bytes":     max(c.Writer.Size(), 0),
		}
		for _, p := range c.Params {
			fields[p.Key] = p.Value
		}
		entry := logger.WithFields(fields)

		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			entry.Error(strings.Join(errs.Errors(), "; "))
			return
		}
		msg := c.Request.Method + " " + c.Request.URL.Path
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}

// route is the registered path template, or the raw path when nothing
// matched.
func route(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return c.Request.URL.Path
}
