// Package api - HTTP сервер состояния симулятора: активные запуски, сводка,
// результаты из индекса, поток событий по websocket и метрики Prometheus.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/minesim/internal/eventbus"
	"github.com/annel0/minesim/internal/logging"
	"github.com/annel0/minesim/internal/middleware"
	"github.com/annel0/minesim/internal/progress"
	"github.com/annel0/minesim/internal/results"
)

// ResultQuerier - источник строк результатов для /api/results
type ResultQuerier interface {
	Rows(ctx context.Context, q results.Query) ([]results.StoredRow, error)
}

// Config содержит зависимости сервера. Index и Bus необязательны.
type Config struct {
	Addr     string // адрес прослушивания, например ":8088"
	Tracker  *progress.Tracker
	Index    ResultQuerier
	Bus      eventbus.EventBus
	Registry *prometheus.Registry // nil - глобальный регистр
	Logger   *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server - HTTP API симулятора
type Server struct {
	router   *gin.Engine
	srv      *http.Server
	cfg      Config
	metrics  *ServerMetrics
	upgrader websocket.Upgrader
	log      *logging.Logger
}

// NewServer создает сервер и настраивает маршруты
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.Tracker == nil {
		cfg.Tracker = progress.NewTracker()
	}
	l := cfg.Logger
	if l == nil {
		l = logging.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("minesim_api"))
	router.Use(middleware.NewRequestLogger(l).Handler())

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cfg.Registry != nil {
		reg, gatherer = cfg.Registry, cfg.Registry
	}
	promMw := middleware.NewPrometheusMiddleware("minesim_api", reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	s := &Server{
		router:  router,
		cfg:     cfg,
		metrics: NewServerMetrics(),
		log:     l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/runs", s.handleRuns)
		api.GET("/summary", s.handleSummary)
		api.GET("/results", s.handleResults)
		api.GET("/progress/ws", s.handleProgressWS)
	}
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start начинает слушать адрес. Неблокирующий: сервер работает в отдельной горутине.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("🌐 API сервер запущен на %s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("❌ Ошибка API сервера: %v", err)
		}
	}()
	return nil
}

// Stop плавно останавливает сервер
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleRuns(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Активные запуски",
		Data:    s.cfg.Tracker.Snapshot(),
	})
}

func (s *Server) handleSummary(c *gin.Context) {
	snap := s.cfg.Tracker.Snapshot()
	data := map[string]interface{}{
		"batch_id":  snap.BatchID,
		"running":   snap.Running,
		"active":    len(snap.Active),
		"started":   snap.Started,
		"completed": snap.Completed,
		"failed":    snap.Failed,
		"process":   s.metrics.Snapshot(),
	}
	if s.cfg.Bus != nil {
		data["eventbus"] = s.cfg.Bus.Metrics()
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Сводка получена",
		Data:    data,
	})
}

func (s *Server) handleResults(c *gin.Context) {
	if s.cfg.Index == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Индекс результатов отключён",
		})
		return
	}

	q := results.Query{
		File:      c.Query("file"),
		Technique: c.Query("technique"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "Неверный параметр limit",
			})
			return
		}
		q.Limit = limit
	}

	rows, err := s.cfg.Index.Rows(c.Request.Context(), q)
	if err != nil {
		s.log.Error("❌ Ошибка чтения индекса результатов: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}
	if rows == nil {
		rows = []results.StoredRow{}
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Результаты получены",
		Data:    rows,
	})
}
