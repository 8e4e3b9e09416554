// Package supervisor owns process lifecycle: booting the Pool, starting
// the metrics ticker, registering HTTP routes, and draining everything on
// shutdown in reverse construction order (spec §4.7).
package supervisor

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pyhostd/pyhostd/internal/api"
	"github.com/pyhostd/pyhostd/internal/audit"
	"github.com/pyhostd/pyhostd/internal/auth"
	"github.com/pyhostd/pyhostd/internal/config"
	"github.com/pyhostd/pyhostd/internal/metrics"
	"github.com/pyhostd/pyhostd/internal/pool"
	"github.com/pyhostd/pyhostd/internal/store"
	"github.com/pyhostd/pyhostd/internal/worker"
)

// Supervisor holds every long-lived component and coordinates startup and
// shutdown order.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pool.Pool
	store    *store.Store
	auditLog *audit.Log
	recorder *metrics.Recorder
	httpSrv  *http.Server

	metricsStop chan struct{}
	wg          sync.WaitGroup

	shutdownOnce sync.Once
}

// New constructs every dependency but does not yet start serving: the Pool
// is booted and the HTTP routes are registered here; Start begins listening.
func New(cfg *config.Config, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	signingKey := []byte(cfg.Sign.Key)
	if len(signingKey) == 0 {
		host, _ := os.Hostname()
		signingKey = store.DeriveKey(cfg.Store.Dir, host)
		logger.Warn("no sign.key configured; derived a development-only signing key")
	}

	scriptStore, err := store.Open(cfg.Store.Dir, cfg.Store.IndexDSN, signingKey)
	if err != nil {
		return nil, fmt.Errorf("opening script store: %w", err)
	}

	auditLog, err := audit.Open(cfg.Store.IndexDSN+".audit", logger)
	if err != nil {
		scriptStore.Close()
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	workerCfg := worker.Config{
		InterpreterPath: cfg.Interpreter.Path,
		UsePTY:          cfg.Interpreter.UsePTY,
		Limits: worker.Limits{
			MemoryMB:    cfg.Limits.MemoryMB,
			CPUSeconds:  cfg.Limits.CPUSeconds,
			OutputBytes: cfg.Limits.OutputBytes,
		},
	}

	p, err := pool.New(pool.Config{
		Size:           cfg.Pool.Size,
		MinSize:        cfg.Pool.MinSize,
		MaxSize:        cfg.Pool.MaxSize,
		BorrowTimeout:  cfg.Pool.BorrowTimeout,
		StartupTimeout: cfg.Pool.StartupTimeout,
		HealthInterval: cfg.Pool.HealthInterval,
		ShutdownGrace:  cfg.Pool.ShutdownGrace,
		ProbeDeadline:  cfg.Pool.ProbeDeadline,
		WorkerConfig:   workerCfg,
	}, logger)
	if err != nil {
		auditLog.Close()
		scriptStore.Close()
		return nil, fmt.Errorf("starting pool: %w", err)
	}

	recorder := metrics.NewRecorder()

	var limiter metrics.Limiter
	if cfg.Rate.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		limiter = metrics.NewRedisLimiter(client, cfg.Rate.PerMinute, cfg.Rate.GlobalCeiling)
	} else {
		limiter = metrics.NewMemoryLimiter(cfg.Rate.PerMinute, cfg.Rate.GlobalCeiling)
	}

	verifier := auth.NewVerifier("pyhostd", loadJWTKeys(cfg.Auth.JWTPublicKeyPath, logger), nil, cfg.Auth.AdminKey)

	srv := api.NewServer(p, scriptStore, recorder, limiter, auditLog, verifier, api.Limits{
		CodeBytes:      cfg.Limits.CodeBytes,
		RequestTimeout: cfg.Request.Timeout,
		BorrowTimeout:  cfg.Pool.BorrowTimeout,
	}, logger)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Supervisor{
		cfg: cfg, logger: logger,
		pool: p, store: scriptStore, auditLog: auditLog, recorder: recorder,
		httpSrv: httpSrv, metricsStop: make(chan struct{}),
	}, nil
}

// loadJWTKeys is a placeholder resolving the configured public key path
// into an issuer->key map; absent configuration disables session-token
// auth and leaves API keys/admin key as the only credentials.
func loadJWTKeys(path string, logger *slog.Logger) map[string]ed25519.PublicKey {
	if path == "" {
		return map[string]ed25519.PublicKey{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("could not read jwt public key; session tokens disabled", "path", path, "error", err)
		return map[string]ed25519.PublicKey{}
	}
	if len(data) != ed25519.PublicKeySize {
		logger.Warn("jwt public key has unexpected size; session tokens disabled", "path", path)
		return map[string]ed25519.PublicKey{}
	}
	return map[string]ed25519.PublicKey{"pyhostd": ed25519.PublicKey(data)}
}

// Start begins serving HTTP and the per-minute metrics ticker.
func (s *Supervisor) Start() error {
	s.wg.Add(1)
	go s.metricsLoop()

	s.logger.Info("pyhostd listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Supervisor) metricsLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.recorder.Tick(s.cfg.Pool.Size, func() (inUse, available, healthy int) {
				stats := s.pool.Stats()
				return stats.InUse, stats.Available, stats.Size - stats.Unhealthy
			})
		case <-s.metricsStop:
			return
		}
	}
}

// Shutdown drains everything in reverse construction order. Idempotent
// (spec §4.7).
func (s *Supervisor) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("pyhostd shutting down")

		if err := s.httpSrv.Shutdown(ctx); err != nil {
			shutdownErr = err
		}

		close(s.metricsStop)
		s.wg.Wait()

		if err := s.pool.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
		if err := s.auditLog.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
		if err := s.store.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	})
	return shutdownErr
}
