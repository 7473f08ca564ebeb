package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/config"
	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/payload"
	"github.com/atelab/opticalign/pkg/procedure"
	"github.com/atelab/opticalign/pkg/records"
	"github.com/atelab/opticalign/pkg/stream"
	"github.com/atelab/opticalign/pkg/utils/ginlogger"
)

// server holds everything the handlers need. There is exactly one per
// daemon process.
type server struct {
	conf    config.Config
	session *procedure.Session
	payload *payload.Client
	// store is nil when no record database is configured.
	store *records.DB
	hub   *events.EventHub
}

func (s *server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlogger.New(logrus.StandardLogger()))

	router.GET("/version", getVersion)
	router.GET("/config", s.getConfig)
	router.GET("/status", s.getStatus)
	router.GET("/events", s.streamEvents)

	router.POST("/step/next", s.nextStep)
	router.POST("/step/prev", s.prevStep)
	router.PUT("/axis", s.setAxis)

	router.GET("/cameras/:id", s.getCamera)
	router.GET("/cameras/:id/frame", s.getFrame)
	router.POST("/cameras/:id/start", s.startStream)
	router.POST("/cameras/:id/stop", s.stopStream)
	router.PUT("/cameras/:id/algorithm", s.setAlgorithm)
	router.PUT("/cameras/:id/overlay", s.setOverlay)

	router.POST("/devices/:kind", s.controlDevice)
	router.GET("/payload/devices", s.getPayloadDevices)

	router.POST("/pulsed-laser", s.controlPulsedLaser)
	router.GET("/pulsed-laser/temperature", s.getPulsedLaserTemperature)
	router.GET("/pulsed-laser/history", s.getTemperatureHistory)

	router.GET("/records", s.getRecords)
	router.POST("/records", s.addRecord)
	router.POST("/records/:index/complete", s.completeRecord)
	router.GET("/records/history", s.getRecordHistory)

	return router
}

// Options are the daemon's command line settings.
type Options struct {
	ConfigPath string
	SocketPath string
	// AllowNonRoot opens the socket to every user even when the config
	// does not.
	AllowNonRoot bool
}

func Run(opts Options) error {
	gin.SetMode(gin.ReleaseMode)
	unixSocketPath := opts.SocketPath

	conf, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	s := &server{
		conf:    conf,
		payload: payload.NewClient(conf.PayloadURL(), conf.CommandTimeout()),
		hub:     events.NewEventHub(),
	}

	var store procedure.RecordStore
	if path := conf.RecordDatabase(); path != "" {
		s.store, err = records.NewDB(path)
		if err != nil {
			logrus.Errorf("failed to open record database, records are kept in memory only: %v", err)
		} else {
			store = s.store
			logrus.WithField("path", path).Info("record database opened")
		}
	}

	channel := stream.NewChannel(
		stream.NewWebsocketTransport(conf.StreamURL()),
		conf.ConnectTimeout(),
		conf.CommandTimeout(),
		s.hub,
	)
	s.session = procedure.NewSession(conf, s.payload, channel, store, s.hub)

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			s.session.RefreshPolling()
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded, endpoint and timeout changes apply after a restart")
		}
	}()

	srv := &http.Server{
		Handler: s.routes(),
	}

	// A socket left behind by a crashed daemon would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatal(err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	// Event streams only end when the hub closes them.
	s.hub.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("closing test session")
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if err := s.session.Close(ctx); err != nil {
		logrus.Errorf("failed to close test session cleanly: %v", err)
	}
	cancel()

	if s.store != nil {
		logrus.Info("closing record database")
		if err := s.store.Close(); err != nil {
			logrus.Errorf("failed to close record database: %v", err)
		}
	}

	logrus.Info("exiting")
	return nil
}
