package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/mlqueue/pkg/aggregator"
	"github.com/cyclopcam/mlqueue/pkg/balancedq"
	"github.com/cyclopcam/mlqueue/pkg/capture"
	"github.com/cyclopcam/mlqueue/pkg/frame"
	"github.com/cyclopcam/mlqueue/server/configdb"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
)

type FrameQueue = balancedq.Queue[*frame.Frame]

// ResultAggregator is an aggregator, with a lock so that HTTP handlers can share it
type ResultAggregator struct {
	lock sync.Mutex
	agg  *aggregator.Aggregator[AggregatorItem]
}

// AggregatorItem is a single consumer result, eg the detections in one frame.
// Items with the same Kind are considered equal.
type AggregatorItem struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload,omitempty"`
}

type Server struct {
	Log              logs.Log
	ConfigDB         *configdb.ConfigDB
	ShutdownComplete chan error // Receives the result of Shutdown

	config      Config
	signalIn    chan os.Signal
	closing     chan struct{} // Closed when the server starts shutting down
	closeOnce   sync.Once
	httpServer  *http.Server
	httpRouter  *httprouter.Router
	wsUpgrader  websocket.Upgrader
	registry    *prometheus.Registry
	queues      map[string]*FrameQueue // Immutable after NewServer
	queueNames  []string               // Sorted
	cameras     []*capture.Camera
	aggregators map[string]*ResultAggregator
}

// NewServer creates the queues, cameras and aggregators from the config DB.
// Cameras are not started until StartCameras is called.
func NewServer(logger logs.Log, cfg Config, configDB *configdb.ConfigDB) (*Server, error) {
	s := &Server{
		Log:              logger,
		ConfigDB:         configDB,
		ShutdownComplete: make(chan error, 1),
		config:           cfg,
		closing:          make(chan struct{}),
		queues:           map[string]*FrameQueue{},
		aggregators:      map[string]*ResultAggregator{},
	}

	queueRecords, err := configDB.ListQueues()
	if err != nil {
		return nil, err
	}
	byID := map[int64]*FrameQueue{}
	for _, rec := range queueRecords {
		q, err := balancedq.New[*frame.Frame](logger, rec.Name, rec.Config())
		if err != nil {
			return nil, err
		}
		logger.Infof("Queue %v: capacity %v, max batch size %v", rec.Name, q.Capacity(), rec.MaxBatchSize)
		s.queues[rec.Name] = q
		s.queueNames = append(s.queueNames, rec.Name)
		byID[rec.ID] = q
	}
	sort.Strings(s.queueNames)

	cameraRecords, err := configDB.ListCameras()
	if err != nil {
		return nil, err
	}
	captureOptions := cfg.Capture.Options()
	for _, rec := range cameraRecords {
		if !rec.Enabled {
			continue
		}
		q := byID[rec.QueueID]
		if q == nil {
			return nil, fmt.Errorf("Camera %v refers to unknown queue %v", rec.Name, rec.QueueID)
		}
		s.cameras = append(s.cameras, capture.NewCamera(logger, rec.Name, rec.Address, rec.Interval(), captureOptions, q))
	}

	aggRecords, err := configDB.ListAggregators()
	if err != nil {
		return nil, err
	}
	for _, rec := range aggRecords {
		agg, err := aggregator.New[AggregatorItem](aggregator.Mode(rec.Mode), rec.StateThreshold, rec.TimeGap(), aggregatorItemKind)
		if err != nil {
			return nil, fmt.Errorf("Aggregator %v: %w", rec.Name, err)
		}
		s.aggregators[rec.Name] = &ResultAggregator{agg: agg}
	}

	s.registry = prometheus.NewRegistry()
	if err := s.registry.Register(newQueueCollector(s)); err != nil {
		return nil, err
	}

	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func aggregatorItemKind(item AggregatorItem) string {
	return item.Kind
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Queue returns the named queue, or nil
func (s *Server) Queue(name string) *FrameQueue {
	return s.queues[name]
}

func (s *Server) StartCameras() error {
	var firstErr error
	for _, cam := range s.cameras {
		if err := cam.Start(); err != nil {
			s.Log.Errorf("Error starting camera %v: %v", cam.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Close stops the cameras and the HTTP server, and ends all websocket streams.
// It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		for _, cam := range s.cameras {
			cam.Stop()
		}
		if s.httpServer != nil {
			s.Log.Infof("Closing HTTP server")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err = s.httpServer.Shutdown(ctx)
		}
	})
	return err
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	err := s.Close()
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.ShutdownComplete <- err
}
