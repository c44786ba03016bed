package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"searchweave/internal/corpus"
	"searchweave/internal/db/postgres"
	applog "searchweave/internal/platform/log"
	"searchweave/internal/search"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JWTSecret    string // 为空表示接口不鉴权
	JWTIssuer    string
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// Server HTTP 服务器
type Server struct {
	config  *ServerConfig
	engine  *search.Engine
	store   *corpus.Store
	docs    *postgres.DocRepository // 可选，nil 时从语料兜底
	httpSrv *http.Server
}

// NewServer 创建服务器
func NewServer(config *ServerConfig, engine *search.Engine, store *corpus.Store) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config: config,
		engine: engine,
		store:  store,
	}
}

// SetDocRepository 设置文档元数据仓库（可选，仅在 PostgreSQL 配置时启用）
func (s *Server) SetDocRepository(repo *postgres.DocRepository) {
	s.docs = repo
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

	applog.Infof("🚀 Search API server starting on %s", addr)
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

	searchHandler := NewSearchHandler(s.engine)
	docHandler := NewDocumentHandler(s.store, s.docs)

	r.Group(func(r chi.Router) {
		if s.config.JWTSecret != "" {
			r.Use(authMiddleware(&JWTConfig{
				Secret: s.config.JWTSecret,
				Issuer: s.config.JWTIssuer,
			}))
			applog.Info("🔒 Bearer auth enabled")
		}
		searchHandler.RegisterRoutes(r)
		docHandler.RegisterRoutes(r)
	})

	return r
}

// corsMiddleware CORS 中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
