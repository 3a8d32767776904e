// Package main はShashinサーバーコマンドの実装です
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"shashin/internal/app"
	"shashin/internal/camera"
	"shashin/internal/config"
	"shashin/internal/logging"
)

// options はコマンドラインで指定された上書き値
type options struct {
	configPath string
	host       string
	port       int
	device     string
	position   camera.Position
	mock       bool
	logLevel   string
	logFormat  string
}

func main() {
	var opts options

	cmd := kingpin.New("shashin-server", "カメラのプレビュー・撮影・確認を行うサーバー").
		Action(func(*kingpin.ParseContext) error {
			return run(opts)
		})

	cmd.Flag("config", "設定ファイル (YAML)").
		Short('c').
		Envar("SHASHIN_CONFIG").
		StringVar(&opts.configPath)
	cmd.Flag("host", "サーバーのホスト (デフォルト: 0.0.0.0)").
		StringVar(&opts.host)
	cmd.Flag("port", "サーバーのポート (デフォルト: 8080)").
		IntVar(&opts.port)
	cmd.Flag("device", "使用するデバイスパス (例: /dev/video0)").
		StringVar(&opts.device)
	cmd.Flag("position", "優先するカメラの向き (back, front)").
		SetValue(&opts.position)
	cmd.Flag("mock", "実機の代わりにモックカメラを使う").
		BoolVar(&opts.mock)
	cmd.Flag("log.level", "ログレベル (debug, info, warn, error)").
		StringVar(&opts.logLevel)
	cmd.Flag("log.format", "ログ形式").
		EnumVar(&opts.logFormat, "console", "json")

	kingpin.MustParse(cmd.Parse(os.Args[1:]))
}

func run(opts options) error {
	// 設定を読み込む
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	// コマンドラインオプションで設定を上書き
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("オプションが不正です: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.Error("サーバーが異常終了しました", zap.Error(err))
		return err
	}
	return nil
}

func (o options) apply(cfg *config.Config) {
	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
	if o.device != "" {
		cfg.Camera.Device = o.device
	}
	if o.position != "" {
		cfg.Camera.Position = o.position
	}
	if o.mock {
		cfg.Camera.Backend = config.BackendMock
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
}
