// Package api serves the Verum HTTP API: evidence analysis, sealing,
// verification, speaker comparison and ledger queries.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"verum/internal/config"
	"verum/internal/engine"
	"verum/internal/health"
	"verum/internal/ledger"
	"verum/internal/logging"
	"verum/internal/media"
	"verum/internal/metrics"
	"verum/internal/seal"
	"verum/internal/security"
)

// Version is reported by the health endpoint.
var Version = "dev"

// runtimeState is everything rebuilt from configuration on reload.
type runtimeState struct {
	engine          *engine.Engine
	sealer          *seal.Sealer
	analysisTimeout time.Duration
	maxUpload       int64
}

// Deps are the collaborators a Server is built from. Ledger and Audit may
// be nil.
type Deps struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Ledger  *ledger.Ledger
	Audit   *logging.AuditLogger
}

// Server is the HTTP front end. It is safe for concurrent use; Reload swaps
// the analysis engine and sealer without interrupting in-flight requests.
type Server struct {
	r       *gin.Engine
	state   atomic.Pointer[runtimeState]
	decoder *media.Decoder
	limiter *security.IPRateLimiter
	health  *health.Checker

	logger  *logging.Logger
	metrics *metrics.Metrics
	ledger  *ledger.Ledger
	audit   *logging.AuditLogger
}

// NewServer builds a server from cfg. A nil cfg uses the defaults.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		r:       r,
		decoder: media.NewDecoder(),
		health:  health.NewChecker(Version),
		logger:  logger.WithComponent("api"),
		metrics: deps.Metrics,
		ledger:  deps.Ledger,
		audit:   deps.Audit,
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = security.NewIPRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 10*time.Minute)
	}
	s.Reload(cfg)
	s.initHealth(cfg)
	s.routes()
	return s
}

// Reload rebuilds the engine and sealer from cfg. Rate limits are fixed
// at construction.
func (s *Server) Reload(cfg *config.Config) {
	s.state.Store(&runtimeState{
		engine:          engine.New(cfg, engine.WithLogger(s.logger), engine.WithMetrics(s.metrics)),
		sealer:          seal.New(seal.WithAlgorithmVersion(cfg.Seal.AlgorithmVersion)),
		analysisTimeout: cfg.Server.AnalysisTimeout(),
		maxUpload:       cfg.Server.MaxUploadBytes(),
	})
}

func (s *Server) initHealth(cfg *config.Config) {
	s.health.RegisterFunc("memory", false, health.MemoryCheck(4<<30))
	if s.ledger == nil {
		return
	}
	s.health.RegisterFunc("ledger", true, health.PingCheck("ledger", func(ctx context.Context) error {
		st, err := s.ledger.Stats(ctx)
		if err != nil {
			return err
		}
		if !st.IntegrityOK {
			return ledger.ErrIntegrityCompromise
		}
		return nil
	}))
	if cfg.Ledger.KeyPath != "" {
		s.health.RegisterFunc("ledger_key", false, health.SecretFileCheck(cfg.Ledger.KeyPath))
	}
}

func (s *Server) routes() {
	s.r.Use(s.requestID(), s.accessLog())

	s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.r.Group("/api/v1")
	v1.GET("/health", s.handleHealth)

	limited := v1.Group("", s.rateLimit())
	limited.POST("/evidence", s.handleEvidence)
	limited.POST("/seal", s.handleSeal)
	limited.POST("/verify", s.handleVerify)
	limited.POST("/speakers/compare", s.handleCompareSpeakers)

	l := v1.Group("/ledger")
	l.GET("/records", s.handleLedgerSearch)
	l.GET("/records/:id", s.handleLedgerGet)
	l.GET("/stats", s.handleLedgerStats)
	l.POST("/verify", s.handleLedgerVerify)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.r
}

// Health returns the server's health checker.
func (s *Server) Health() *health.Checker {
	return s.health
}

// HTTPServer returns an http.Server for addr using the configured timeouts.
func (s *Server) HTTPServer(cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.r,
		ReadTimeout:       cfg.Server.ReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       2 * time.Minute,
	}
}

// Serve runs srv until ctx ends, then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	s.logger.Info("api listening", "addr", srv.Addr)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
