package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"checkengine/internal/autochecks"
	"checkengine/internal/checking"
	"checkengine/internal/clock"
	"checkengine/internal/config"
	"checkengine/internal/domain"
	"checkengine/internal/ingest"
	"checkengine/internal/logging"
	"checkengine/internal/metrics"
	"checkengine/internal/plugins"
	"checkengine/internal/prediction"
	"checkengine/internal/state"
	"checkengine/internal/submit"
	"checkengine/internal/valuestore"

	"go.uber.org/multierr"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable check engine service.
type Service struct {
	cfg        config.Config
	logger     *slog.Logger
	closeLog   func()
	valueStore state.Store
	predStore  state.Store
	checker    *Checker
	metrics    *metrics.Metrics
	httpSrv    *http.Server
	natsSub    interface{ Close() error }
	amqpSub    interface{ Close() error }
	readyFlag  atomic.Bool
	clock      clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
	}
	if cfg.Metrics.Enabled {
		service.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	if err := service.buildStores(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildChecker(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildHTTPServer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildNATSSubscriber(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildAMQPConsumer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// Checker exposes the check engine of the service.
func (s *Service) Checker() *Checker { return s.checker }

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	defer shutdownCancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Ingest.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	cycleDone := make(chan struct{})
	ticker := time.NewTicker(time.Duration(s.cfg.Service.CheckIntervalSec) * time.Second)
	defer ticker.Stop()
	go func() {
		defer close(cycleDone)
		for {
			select {
			case <-shutdownCtx.Done():
				return
			case <-ticker.C:
				if err := s.checker.RunCycle(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error("check cycle failed", "error", err.Error())
				}
			}
		}
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		runErr = fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
	}
	shutdownCancel()
	<-cycleDone
	return multierr.Append(runErr, s.shutdown())
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: combined close errors.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	closeStep := func(name string, closeErr error) {
		if closeErr == nil {
			return
		}
		s.logger.Error(name+" failed", "error", closeErr.Error())
		err = multierr.Append(err, fmt.Errorf("%s: %w", name, closeErr))
	}

	closeStep("http shutdown", s.httpSrv.Shutdown(ctx))
	if s.natsSub != nil {
		closeStep("nats subscriber close", s.natsSub.Close())
	}
	if s.amqpSub != nil {
		closeStep("amqp consumer close", s.amqpSub.Close())
	}
	closeStep("submitter close", s.checker.Close())
	closeStep("value store close", s.valueStore.Close())
	if s.predStore != nil && s.predStore != s.valueStore {
		closeStep("prediction store close", s.predStore.Close())
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return err
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.amqpSub != nil {
		_ = s.amqpSub.Close()
		s.amqpSub = nil
	}
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.checker != nil {
		_ = s.checker.Close()
		s.checker = nil
	}
	if s.predStore != nil && s.predStore != s.valueStore {
		_ = s.predStore.Close()
	}
	s.predStore = nil
	if s.valueStore != nil {
		_ = s.valueStore.Close()
		s.valueStore = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildStores opens the value store and prediction store backends.
// Params: none.
// Returns: backend setup error.
func (s *Service) buildStores() error {
	if isSingleMode(s.cfg) {
		s.valueStore = state.NewMemoryStore()
		s.predStore = s.valueStore
		return nil
	}
	valueStore, err := state.NewNATSStore(config.DeriveStateNATSConfig(s.cfg, config.ValueStoreBucket()))
	if err != nil {
		return fmt.Errorf("value store: %w", err)
	}
	s.valueStore = valueStore
	predStore, err := state.NewNATSStore(config.DeriveStateNATSConfig(s.cfg, config.PredictionBucket()))
	if err != nil {
		return fmt.Errorf("prediction store: %w", err)
	}
	s.predStore = predStore
	return nil
}

// buildChecker wires plugins, prediction and submitters into the checker.
// Params: none.
// Returns: setup error.
func (s *Service) buildChecker() error {
	registry, err := plugins.NewRegistry()
	if err != nil {
		return err
	}
	history := prediction.NewMemoryHistory(time.Duration(s.cfg.Prediction.RetentionDays)*24*time.Hour, s.cfg.Prediction.MaxSamples)
	submitter, err := buildSubmitter(s.cfg, history, s.logger)
	if err != nil {
		return err
	}
	checker, err := NewChecker(s.cfg, Deps{
		Registry:    registry,
		Stores:      valuestore.NewManager(s.valueStore),
		Predictions: prediction.NewEngine(history, prediction.NewStore(s.predStore), s.clock, s.logger),
		Crash:       checking.NewCrashReporter(s.cfg.Crash.Dir, s.clock, s.logger),
		Autochecks:  autochecks.NewStore(s.cfg.Autochecks.Dir),
		Submitter:   submitter,
		Metrics:     s.metrics,
		Clock:       s.clock,
		Logger:      s.logger,
	})
	if err != nil {
		_ = submitter.Close()
		return err
	}
	s.checker = checker
	return nil
}

// buildSubmitter combines enabled result targets; history is always fed.
func buildSubmitter(cfg config.Config, history *prediction.MemoryHistory, logger *slog.Logger) (submit.Submitter, error) {
	targets := []submit.Submitter{submit.NewHistorySubmitter(history)}
	if cfg.Submit.Log {
		targets = append(targets, submit.NewLogSubmitter(logger))
	}
	if cfg.Submit.NATS.Enabled && !isSingleMode(cfg) {
		publisher, err := submit.NewNATSPublisher(cfg.Submit.NATS)
		if err != nil {
			return nil, fmt.Errorf("result publisher: %w", err)
		}
		targets = append(targets, publisher)
	}
	return submit.NewFanout(targets...), nil
}

// buildHTTPServer wires router with ingest, discovery, metrics and health endpoints.
// Params: none.
// Returns: setup error.
func (s *Service) buildHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Ingest.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Ingest.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	if s.metrics != nil {
		mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}

	if s.cfg.Ingest.HTTP.Enabled {
		handler := ingest.NewHTTPHandler(countingSink{sink: s.checker, transport: "http", metrics: s.metrics}, s.cfg.Ingest.HTTP.MaxBodyBytes)
		mux.Handle(s.cfg.Ingest.HTTP.IngestPath, handler)
		batchPath := strings.TrimSuffix(s.cfg.Ingest.HTTP.IngestPath, "/") + "/batch"
		if batchPath != s.cfg.Ingest.HTTP.IngestPath {
			mux.Handle(batchPath, handler)
		}
		mux.Handle(strings.TrimSuffix(s.cfg.Ingest.HTTP.IngestPath, "/")+"/discover", discoverHandler(s.checker))
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Ingest.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// discoverHandler runs discovery for ?host= on POST and saves autochecks.
func discoverHandler(checker *Checker) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			writer.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		host := strings.TrimSpace(request.URL.Query().Get("host"))
		if host == "" {
			http.Error(writer, "host is required", http.StatusBadRequest)
			return
		}
		result, err := checker.Discover(domain.HostName(host), true)
		if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"services":    result.Services,
			"host_labels": result.HostLabels,
		})
	})
}

// buildNATSSubscriber starts NATS ingest when enabled.
// Params: none.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber() error {
	if isSingleMode(s.cfg) {
		return nil
	}
	if !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, countingSink{sink: s.checker, transport: "nats", metrics: s.metrics}, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// buildAMQPConsumer starts RabbitMQ ingest when enabled.
// Params: none.
// Returns: initialization error.
func (s *Service) buildAMQPConsumer() error {
	if !s.cfg.Ingest.AMQP.Enabled {
		return nil
	}
	consumer, err := ingest.NewAMQPConsumer(s.cfg.Ingest.AMQP, countingSink{sink: s.checker, transport: "amqp", metrics: s.metrics}, s.logger)
	if err != nil {
		return err
	}
	s.amqpSub = consumer
	return nil
}

// countingSink reports ingested payloads to metrics.
type countingSink struct {
	sink      *Checker
	transport string
	metrics   *metrics.Metrics
}

func (c countingSink) Push(data domain.RawHostData) error {
	err := c.sink.Push(data)
	c.metrics.ObserveIngest(c.transport, 1, err)
	return err
}

func (c countingSink) PushBatch(batch []domain.RawHostData) error {
	err := c.sink.PushBatch(batch)
	c.metrics.ObserveIngest(c.transport, len(batch), err)
	return err
}

func isSingleMode(cfg config.Config) bool {
	return config.NormalizeServiceMode(cfg.Service.Mode) == config.ServiceModeSingle
}
