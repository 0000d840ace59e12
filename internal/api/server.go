package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"neurodata/internal/domain/credits"
	"neurodata/internal/domain/module"
	"neurodata/internal/domain/result"
	"neurodata/internal/domain/run"
	"neurodata/internal/domain/template"
	"neurodata/internal/domain/workflow"
	applog "neurodata/internal/platform/log"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RunTimeout   time.Duration // 工作流执行超时（同步/流式）
	JWTSecret    string        // JWT 签名密钥，为空时鉴权关闭
	JWTIssuer    string        // JWT 签发者（可选）
	MobileLimits result.MobileLimits
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // SSE 需要较长写超时
		RunTimeout:   5 * time.Minute,
		MobileLimits: result.DefaultMobileLimits(),
	}
}

// Server HTTP 服务器
type Server struct {
	config       *ServerConfig
	store        workflow.Store
	orchestrator *run.Orchestrator
	wizard       *template.Wizard
	ledger       *credits.Ledger
	modules      *module.Registry
	httpSrv      *http.Server
}

// NewServer 创建服务器。store/wizard/ledger 可为 nil，对应能力降级。
func NewServer(config *ServerConfig, store workflow.Store, orch *run.Orchestrator, wizard *template.Wizard, ledger *credits.Ledger, modules *module.Registry) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config:       config,
		store:        store,
		orchestrator: orch,
		wizard:       wizard,
		ledger:       ledger,
		modules:      modules,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Infof("🚀 NeuroData API server starting on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Stop 优雅停机
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler 返回 HTTP Handler（用于测试）
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	workflowHandler := NewWorkflowHandler(s.store, s.orchestrator, s.wizard, s.ledger, s.config.RunTimeout)
	authMW := authMiddleware(&JWTConfig{Secret: s.config.JWTSecret, Issuer: s.config.JWTIssuer})

	r.Group(func(r chi.Router) {
		r.Use(authMW)
		workflowHandler.RegisterRoutes(r)
		NewResultHandler(s.store, s.config.MobileLimits).RegisterRoutes(r)
		if s.modules != nil {
			NewModuleHandler(s.modules).RegisterRoutes(r)
		}
	})
	return r
}

// corsMiddleware CORS 中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
