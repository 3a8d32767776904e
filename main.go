package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"shashin/internal/app"
	"shashin/internal/config"
	"shashin/internal/logging"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load(os.Getenv("SHASHIN_CONFIG"))
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// サーバーを起動
	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.Error("サーバーの起動に失敗しました", zap.Error(err))
		os.Exit(1)
	}
}
