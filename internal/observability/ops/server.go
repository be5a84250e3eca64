// Package ops serves the operational HTTP surface: health, Prometheus
// metrics, a small job API with manual sync/reset triggers, and pprof.
package ops

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"airsync/internal/runtime/supervisor"
	logx "airsync/pkg/logx"
)

const defaultAddr = "127.0.0.1:8089"

// Config controls the ops server.
//
// A non-loopback Addr requires Token unless AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	deps Deps

	ln  net.Listener
	srv *http.Server
	sup *supervisor.Supervisor
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, deps: deps, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr returns the bound listen address, or "" when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Validate rejects configs the server would refuse to serve.
func Validate(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	addr := addrOrDefault(cfg.Addr)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return err
	}
	if !cfg.AllowInsecure && strings.TrimSpace(cfg.Token) == "" && !isLoopbackAddr(addr) {
		return errors.New("ops: non-loopback addr requires token or allow_insecure")
	}
	return nil
}

// Reconfigure applies cfg, starting, stopping or restarting the server as
// needed. Safe to call during hot reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
		return nil
	case !running:
		return s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		return s.Start(ctx)
	}
	return nil
}

// Start binds the listener and serves in the background. The listener is
// bound synchronously so a bad address fails here rather than in a log line.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return nil
	}
	cfg := s.cfg
	if err := Validate(cfg); err != nil {
		return err
	}
	addr := addrOrDefault(cfg.Addr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if cfg.AllowInsecure && strings.TrimSpace(cfg.Token) == "" && !isLoopbackAddr(addr) {
		s.log.Warn("ops server running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	srv := &http.Server{
		Handler:      Handler(cfg.Token, s.deps, s.log),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	sup := supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.ln, s.srv, s.sup = ln, srv, sup

	sup.Go("http.serve", func(c context.Context) error {
		go func() {
			<-c.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = srv.Shutdown(sctx)
			cancel()
		}()
		err := srv.Serve(ln)
		if c.Err() != nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	s.log.Info("ops server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv, s.ln = nil, nil, nil
	s.mu.Unlock()
	if sup == nil {
		return
	}

	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("ops server exited with error", logx.Err(err))
	}
	s.log.Info("ops server stopped")
}

func addrOrDefault(addr string) string {
	if a := strings.TrimSpace(addr); a != "" {
		return a
	}
	return defaultAddr
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
