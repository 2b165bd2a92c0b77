package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"aepaudit/internal/ctxkeys"
	"aepaudit/internal/logger"
	"aepaudit/internal/storage"
	"aepaudit/pkg/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Backend 接入层依赖的服务能力
type Backend interface {
	StartRun(cfg model.RunConfig) (string, error)
	Validators() []model.ValidatorInfo
	Runs(ctx context.Context) ([]storage.Run, error)
	GetRun(ctx context.Context, id string) (*storage.Run, error)
	Subscribe() (<-chan model.StatusUpdate, func())
}

// Server 对外HTTP/WebSocket接入层
type Server struct {
	svc      Backend
	log      logger.Logger
	hub      *Hub
	origins  map[string]bool
	upgrader *websocket.Upgrader
	srv      *http.Server

	stopBus func()
}

// New 创建接入层并把服务端状态广播接入WebSocket集线器
func New(svc Backend, allowedOrigins []string, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	s := &Server{
		svc:     svc,
		log:     l,
		hub:     newHub(l),
		origins: make(map[string]bool, len(allowedOrigins)),
	}
	for _, o := range allowedOrigins {
		s.origins[strings.TrimRight(o, "/")] = true
	}
	s.upgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.allowOrigin,
	}

	updates, cancel := svc.Subscribe()
	s.stopBus = cancel
	go s.pumpUpdates(updates)
	return s
}

// pumpUpdates 把服务端状态更新编码后交给集线器广播
func (s *Server) pumpUpdates(updates <-chan model.StatusUpdate) {
	for upd := range updates {
		b, err := json.Marshal(upd)
		if err != nil {
			s.log.Err(err, "状态更新编码失败")
			continue
		}
		s.hub.Broadcast(b)
	}
}

// Handler 组装全部路由与中间件
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/crawl", s.handleCrawl)
	mux.HandleFunc("GET /api/validators", s.handleValidators)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /ws", s.handleWS)
	return s.withTrace(s.withCORS(mux))
}

// Start 启动HTTP监听，阻塞到服务关闭
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("HTTP服务启动", "listen", addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 优雅停机：停广播、断连接、关监听
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopBus != nil {
		s.stopBus()
	}
	s.hub.CloseAll()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleCrawl 受理一次抓取+校验运行，立即返回运行ID
func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var cfg model.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id, err := s.svc.StartRun(cfg)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("受理抓取请求", "runId", id, "url", cfg.TargetURL)
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": id, "status": string(model.RunRunning)})
}

func (s *Server) handleValidators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"validators": s.svc.Validators()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.hub.Count()})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.Runs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.svc.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serveWS(s.upgrader, w, r)
}

// allowOrigin 判定来源是否可以建立WebSocket连接。
// 无Origin头的非浏览器客户端直接放行，同主机请求放行。
func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.origins[strings.TrimRight(origin, "/")] {
		return true
	}
	return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://"), r.Host)
}

// withCORS 按配置的允许来源应答跨域请求
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.origins[strings.TrimRight(origin, "/")] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withTrace 为每个请求注入追踪ID并记录访问日志
func (s *Server) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := uuid.NewString()
		ctx := context.WithValue(r.Context(), ctxkeys.TraceIDKey{}, traceID)
		w.Header().Set("X-Trace-Id", traceID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.log.Debug("请求处理完成", "method", r.Method, "path", r.URL.Path, "traceId", traceID, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
