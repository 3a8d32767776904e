package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shashin/internal/api"
	"shashin/internal/camera"
	"shashin/internal/config"
	"shashin/internal/flow"
)

// Flow はサーバーが操作する撮影フロー
type Flow interface {
	Capture()
	Reset()
	Snapshot() flow.Snapshot
	Image() *camera.Image
	Subscribe(buffer int) (<-chan flow.Snapshot, func())
}

// Camera はサーバーが参照するカメラセッション
type Camera interface {
	Device() (camera.Device, bool)
	Preview() (<-chan []byte, func(), bool)
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server

	// stopping はシャットダウン開始時に閉じられ、ストリーミング中のレスポンスを終了させる
	stopping chan struct{}
}

// New は新しいServerインスタンスを作成する
func New(ctx context.Context, cfg *config.Config, f Flow, cam Camera, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	doc, err := api.Spec(ctx)
	if err != nil {
		return nil, err
	}
	spec, err := specJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("API定義の変換に失敗: %w", err)
	}

	engine := gin.New()
	engine.Use(requestLogger(logger), gin.Recovery())

	s := &Server{
		config: cfg,
		logger: logger,
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		stopping: make(chan struct{}),
	}
	var stopOnce sync.Once
	s.httpServer.RegisterOnShutdown(func() {
		stopOnce.Do(func() { close(s.stopping) })
	})

	s.setupRoutes(&Handler{
		config:   cfg,
		flow:     f,
		camera:   cam,
		spec:     spec,
		logger:   logger,
		stopping: s.stopping,
	})

	return s, nil
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(h *Handler) {
	api.RegisterHandlers(s.engine, h)

	// 画面
	s.engine.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "指定されたパスは存在しません"))
	})
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("addr", s.config.ServerAddress()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", zap.Stringer("signal", sig))
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストごとにアクセスログを出力する
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("リクエスト",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// specJSON はAPI定義を返す
func specJSON(doc *openapi3.T) ([]byte, error) {
	return doc.MarshalJSON()
}
