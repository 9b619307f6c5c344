// Package server serves a story to readers over HTTP: the host page, a JSON
// API driving per-reader sessions, submissions, save slots and live reload.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/enquirywitch/enquirywitch"
	"github.com/enquirywitch/enquirywitch/internal/cache"
	"github.com/enquirywitch/enquirywitch/internal/config"
	"github.com/enquirywitch/enquirywitch/internal/store"
	"github.com/enquirywitch/enquirywitch/internal/submit"
	"go.uber.org/zap"
)

// Server is the story server.
type Server struct {
	cfg      *config.Config
	renderer *enquirywitch.Renderer
	flow     *submit.Flow
	store    store.Store
	log      *zap.Logger

	mu    sync.RWMutex
	story *enquirywitch.Story

	readers *cache.Cache[*reader]

	connections map[*liveConn]bool // Live reload clients
	connMu      sync.RWMutex       // Separate mutex for connections
	watcher     *Watcher

	handler     http.Handler
	stopLimiter context.CancelFunc
	limiterDone <-chan struct{}
	closeOnce   sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithRenderer sets the renderer used when the story is reloaded.
func WithRenderer(r *enquirywitch.Renderer) Option {
	return func(s *Server) { s.renderer = r }
}

// WithFlow enables submissions.
func WithFlow(f *submit.Flow) Option {
	return func(s *Server) { s.flow = f }
}

// WithStore sets where save slots and the submission archive live.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a server for story. Without WithStore, save slots are kept in
// memory.
func New(cfg *config.Config, story *enquirywitch.Story, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if story == nil {
		return nil, errors.New("server: story is required")
	}

	s := &Server{
		cfg:         cfg,
		story:       story,
		log:         zap.NewNop(),
		connections: make(map[*liveConn]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = store.NewMemory()
	}
	if s.renderer == nil {
		r, err := enquirywitch.NewDefaultRenderer(s.log)
		if err != nil {
			return nil, err
		}
		s.renderer = r
	}

	s.readers = cache.New[*reader](cfg.Server.GetSessionTTL())
	s.readers.OnEvict = func(id string, _ *reader) {
		s.log.Debug("Reader session expired", zap.String("session", id))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopLimiter = cancel
	s.handler = s.routes(ctx)
	return s, nil
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Story returns the story being served.
func (s *Server) Story() *enquirywitch.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.story
}

// Reload loads the story again from the configured path and hands it to
// every live reader session.
func (s *Server) Reload() error {
	path := s.cfg.Story.Path
	if path == "" {
		return errors.New("no story path configured")
	}
	story, err := enquirywitch.Load(path, s.renderer)
	if err != nil {
		return err
	}
	if err := story.Validate(); err != nil {
		s.log.Warn("Story has broken links", zap.Error(err))
	}
	s.SetStory(story)
	return nil
}

// SetStory replaces the story being served.
func (s *Server) SetStory(story *enquirywitch.Story) {
	s.mu.Lock()
	s.story = story
	s.mu.Unlock()

	s.readers.Range(func(_ string, rd *reader) bool {
		rd.session.SetStory(story)
		return true
	})
	s.log.Info("Story loaded", zap.String("story", story.Name), zap.Int("passages", len(story.Passages())))
}

// EnableWatch reloads the story and notifies browsers whenever its source
// changes.
func (s *Server) EnableWatch() error {
	watcher, err := NewWatcher(s.cfg.Story.Path, func(filePath string) error {
		if err := s.Reload(); err != nil {
			return fmt.Errorf("failed to reload story: %w", err)
		}
		s.BroadcastReload(filePath)
		return nil
	}, s.log)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.watcher = watcher
	s.watcher.Start()

	s.log.Info("File watcher started", zap.String("path", s.cfg.Story.Path))
	return nil
}

// StopWatch stops the file watcher if it's running.
func (s *Server) StopWatch() error {
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}

// Close stops background work and drops live connections. The store is
// owned by the caller.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.StopWatch()
		s.stopLimiter()
		<-s.limiterDone
		s.readers.Stop()

		s.connMu.RLock()
		for lc := range s.connections {
			lc.conn.Close()
		}
		s.connMu.RUnlock()
	})
	return err
}

// Addr returns the listen address from the configuration.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", zap.String("addr", "http://"+srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	s.log.Info("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
