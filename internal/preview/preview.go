// Package preview serves the built artifact tree locally and rebuilds it
// when source files change.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const debounceDelay = 300 * time.Millisecond

// RebuildFunc runs one build of the artifact tree.
type RebuildFunc func(ctx context.Context) error

// Server watches the source tree and serves the output tree over HTTP.
type Server struct {
	listen         string
	metricsListen  string
	metricsHandler http.Handler
	sourceDir      string
	outputDir      string
	rebuild        RebuildFunc
	interval       time.Duration
	logger         *slog.Logger
}

// NewServer creates a preview server. interval > 0 adds a periodic rebuild
// on top of change-triggered ones, for sources that change without
// filesystem events (generated content, mounted volumes).
func NewServer(listen, sourceDir, outputDir string, rebuild RebuildFunc) *Server {
	return &Server{
		listen:    listen,
		sourceDir: sourceDir,
		outputDir: outputDir,
		rebuild:   rebuild,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// WithRebuildInterval enables periodic rebuilds.
func (s *Server) WithRebuildInterval(interval time.Duration) *Server {
	s.interval = interval
	return s
}

// WithMetricsListen exposes Prometheus metrics on a separate address. A nil
// handler falls back to the default registry.
func (s *Server) WithMetricsListen(listen string, handler http.Handler) *Server {
	s.metricsListen = listen
	s.metricsHandler = handler
	return s
}

// Run builds once, then serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.rebuild(ctx); err != nil {
		s.logger.Error("Initial build failed", "error", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()
	if err := addDirsRecursive(watcher, s.sourceDir); err != nil {
		return err
	}

	rebuildReq := make(chan struct{}, 1)
	trigger := debounced(rebuildReq)
	go s.rebuildWorker(ctx, rebuildReq)

	if s.interval > 0 {
		cron, err := s.startPeriodicRebuild(rebuildReq)
		if err != nil {
			return err
		}
		defer func() { _ = cron.Shutdown() }()
	}

	httpServer := &http.Server{
		Addr:    s.listen,
		Handler: http.FileServer(http.Dir(s.outputDir)),
	}
	go func() {
		s.logger.Info("Preview server listening", "addr", s.listen, "dir", s.outputDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Preview server failed", "error", err)
		}
	}()
	defer shutdown(httpServer)

	if s.metricsListen != "" {
		handler := s.metricsHandler
		if handler == nil {
			handler = promhttp.Handler()
		}
		metricsServer := &http.Server{Addr: s.metricsListen, Handler: handler}
		go func() {
			s.logger.Info("Metrics listening", "addr", s.metricsListen)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer shutdown(metricsServer)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
				event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				trigger()
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watcher error", "error", watchErr)
		}
	}
}

func (s *Server) startPeriodicRebuild(rebuildReq chan struct{}) (gocron.Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			select {
			case rebuildReq <- struct{}{}:
			default:
			}
		}),
		gocron.WithName("periodic-rebuild"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule periodic rebuild: %w", err)
	}
	cron.Start()
	return cron, nil
}

// rebuildWorker serializes rebuilds; a change arriving mid-build queues one
// follow-up run instead of stacking.
func (s *Server) rebuildWorker(ctx context.Context, rebuildReq chan struct{}) {
	var mu sync.Mutex
	running, pending := false, false

	for {
		select {
		case <-ctx.Done():
			return
		case <-rebuildReq:
			mu.Lock()
			if running {
				pending = true
				mu.Unlock()
				continue
			}
			running = true
			mu.Unlock()

			s.logger.Info("Change detected; rebuilding")
			if err := s.rebuild(ctx); err != nil {
				s.logger.Warn("Rebuild failed", "error", err)
			}

			mu.Lock()
			running = false
			if pending {
				pending = false
				mu.Unlock()
				select {
				case rebuildReq <- struct{}{}:
				default:
				}
			} else {
				mu.Unlock()
			}
		}
	}
}

func debounced(rebuildReq chan struct{}) func() {
	var mu sync.Mutex
	var timer *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() {
			select {
			case rebuildReq <- struct{}{}:
			default:
			}
		})
	}
}

func addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
