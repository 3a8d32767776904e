// Package app は設定からカメラ・撮影フロー・HTTPサーバーを組み立てて起動する
package app

import (
	"context"

	"go.uber.org/zap"

	"shashin/internal/camera"
	"shashin/internal/config"
	"shashin/internal/flow"
	"shashin/internal/server"
)

// NewBackend は設定に応じたカメラバックエンドを作成する
func NewBackend(cfg *config.Config, logger *zap.Logger) camera.Backend {
	if cfg.Camera.Backend == config.BackendMock {
		return camera.NewMockBackend()
	}

	return camera.NewV4L2Backend(camera.NewLinuxDiscovery(), camera.V4L2Options{
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
		Hints:  cfg.DeviceHints(),
		Logger: logger,
	})
}

// Run はサーバーを起動し、ctxのキャンセルかシグナルを受けるまでブロックする
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctrl := flow.NewController(
		flow.WithLogger(logger),
		flow.WithSendTimeout(cfg.Flow.SendTimeout),
	)
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("カメラセッションの終了に失敗しました", zap.Error(err))
		}
	}()

	session := camera.NewSession(NewBackend(cfg, logger), ctrl.Main(),
		camera.WithLogger(logger),
		camera.WithPosition(cfg.Camera.Position),
		camera.WithCaptureTimeout(cfg.Camera.CaptureTimeout),
	)
	ctrl.Open(session)

	srv, err := server.New(ctx, cfg, ctrl, session, logger)
	if err != nil {
		return err
	}

	logger.Info("Shashin を起動します",
		zap.String("addr", cfg.ServerAddress()),
		zap.String("backend", cfg.Camera.Backend),
		zap.Stringer("position", cfg.Camera.Position),
	)
	return srv.Start(ctx)
}
