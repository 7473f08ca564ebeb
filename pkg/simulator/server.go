// Package simulator is a stand-in payload controller. It serves the device
// control REST endpoints and the camera websocket, answering every command
// and streaming synthetic frames.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/atelab/opticalign/pkg/payload"
	"github.com/atelab/opticalign/pkg/utils/ginlogger"
)

type Options struct {
	FrameInterval time.Duration
	Width         int
	Height        int
	// Temperature is the base pulsed laser temperature in °C.
	Temperature float64
}

var DefaultOptions = Options{
	FrameInterval: 200 * time.Millisecond,
	Width:         96,
	Height:        72,
	Temperature:   25,
}

var compositeDevices = map[string]bool{
	"indicationLaser": true,
	"blackBody":       true,
	"visibleLight":    true,
}

// legacyParams maps the per-device endpoints to the device they drive and
// the body field carrying the value.
var legacyParams = map[string][2]string{
	payload.EndpointSetLaserPower:           {"indicationLaser", "power"},
	payload.EndpointSetBlackBodyTemperature: {"blackBody", "temperature"},
	payload.EndpointSetVisibleLight:         {"visibleLight", "light"},
}

// Server is the simulated payload controller. Every command it receives is
// appended to an ordered call log.
type Server struct {
	opts    Options
	started time.Time

	mu      sync.Mutex
	calls   []string
	devices map[string]int
	laser   payload.PulsedLaserRequest
	laserOn bool
	failing map[string]bool
}

func New(opts Options) *Server {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultOptions.FrameInterval
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DefaultOptions.Width, DefaultOptions.Height
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultOptions.Temperature
	}
	return &Server{
		opts:    opts,
		started: time.Now(),
		devices: map[string]int{},
		failing: map[string]bool{},
	}
}

// Fail makes the endpoint path or websocket command type answer with a
// negative acknowledgment.
func (s *Server) Fail(name string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[name] = fail
}

// Calls returns the call log, oldest first.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// DeviceValue returns the last value a composite device was set to.
func (s *Server) DeviceValue(device string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[device]
}

func (s *Server) record(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *Server) fails(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing[name]
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlogger.New(logrus.StandardLogger()))

	router.POST(payload.EndpointCompositeDeviceControl, s.compositeDeviceControl)
	for endpoint := range legacyParams {
		router.POST(endpoint, s.setDeviceValue)
	}
	router.POST(payload.EndpointPulsedLaserControl, s.pulsedLaserControl)
	router.GET(payload.EndpointPulsedLaserTemperature, s.pulsedLaserTemperature)
	router.GET(payload.EndpointDevicesStatus, s.devicesStatus)
	router.GET("/camera", gin.WrapH(websocket.Handler(s.serveCamera)))

	return router
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler()}

	errc := make(chan error, 1)
	go func() {
		logrus.Infof("simulator listening on %s", l.Addr().String())
		errc <- srv.Serve(l)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down simulator")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "data": data})
}

func reject(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": false, "message": message})
}

func (s *Server) compositeDeviceControl(c *gin.Context) {
	var req payload.CompositeDeviceRequest
	if err := c.BindJSON(&req); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	s.record("composite %s %d", req.Device, req.Value)

	if !compositeDevices[req.Device] {
		reject(c, "unknown device "+req.Device)
		return
	}
	if s.fails(payload.EndpointCompositeDeviceControl) {
		reject(c, req.Device+" not connected")
		return
	}
	s.mu.Lock()
	s.devices[req.Device] = req.Value
	s.mu.Unlock()
	ok(c, fmt.Sprintf("%s set to %d", req.Device, req.Value), nil)
}

func (s *Server) setDeviceValue(c *gin.Context) {
	endpoint := c.FullPath()
	target := legacyParams[endpoint]

	var body map[string]int
	if err := c.BindJSON(&body); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	v, okParam := body[target[1]]
	if !okParam {
		reject(c, "missing "+target[1])
		return
	}
	s.record("legacy %s %d", target[0], v)

	if s.fails(endpoint) {
		reject(c, target[0]+" not connected")
		return
	}
	s.mu.Lock()
	s.devices[target[0]] = v
	s.mu.Unlock()
	ok(c, fmt.Sprintf("%s set to %d", target[1], v), nil)
}

func (s *Server) pulsedLaserControl(c *gin.Context) {
	var req payload.PulsedLaserRequest
	if err := c.BindJSON(&req); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	s.record("pulsed %s", req.Operation)

	if s.fails(payload.EndpointPulsedLaserControl) {
		reject(c, "pulsed laser not connected")
		return
	}
	s.mu.Lock()
	s.laser = req
	if req.Operation == "toggle" {
		s.laserOn = !s.laserOn
	}
	s.mu.Unlock()
	ok(c, "pulsed laser "+req.Operation+" applied", nil)
}

func (s *Server) pulsedLaserTemperature(c *gin.Context) {
	if s.fails(payload.EndpointPulsedLaserTemperature) {
		reject(c, "temperature sensor not connected")
		return
	}
	s.mu.Lock()
	on, power := s.laserOn, s.laser.Power
	s.mu.Unlock()

	t := s.opts.Temperature + 0.2*math.Sin(time.Since(s.started).Seconds()/10)
	if on {
		t += power / 20
	}
	ok(c, "", gin.H{"temperature": math.Round(t*100) / 100})
}

func (s *Server) devicesStatus(c *gin.Context) {
	ok(c, "", gin.H{
		"indicationLaser": true,
		"blackBody":       true,
		"visibleLight":    true,
		"pulsedLaser":     true,
		"cameras":         true,
	})
}
