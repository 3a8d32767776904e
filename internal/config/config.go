package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"shashin/internal/camera"
)

// バックエンドの種類
const (
	BackendV4L2 = "v4l2"
	BackendMock = "mock"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Flow   FlowConfig   `yaml:"flow"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト（0で無効）
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // グレースフルシャットダウンの猶予
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Backend  string          `yaml:"backend"`  // v4l2 または mock
	Position camera.Position `yaml:"position"` // 優先するデバイスの向き
	Device   string          `yaml:"device"`   // 優先するデバイスパス (例: /dev/video0)

	// デバイスごとの補足情報
	Devices []CameraDevice `yaml:"devices"`

	Width          int           `yaml:"width"`           // 画像幅
	Height         int           `yaml:"height"`          // 画像高さ
	FPS            int           `yaml:"fps"`             // プレビューのフレームレート
	CaptureTimeout time.Duration `yaml:"capture_timeout"` // 静止画1枚の取得タイムアウト
}

// CameraDevice は個別カメラの補足情報
type CameraDevice struct {
	Device   string          `yaml:"device"`   // デバイスパス
	Name     string          `yaml:"name"`     // 表示名
	Position camera.Position `yaml:"position"` // 向き
}

// FlowConfig は撮影フローの設定
type FlowConfig struct {
	SendTimeout time.Duration `yaml:"send_timeout"` // 1回の送信のタイムアウト
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console または json
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0, // ストリーミング用にタイムアウト無効化
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Backend:        BackendV4L2,
			Position:       camera.PositionBack,
			Width:          1280,
			Height:         720,
			FPS:            15,
			CaptureTimeout: 10 * time.Second,
		},
		Flow: FlowConfig{
			SendTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load は設定を読み込む
// デフォルト値にファイルの内容を重ね、最後に環境変数で上書きする
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("設定のマージに失敗: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルから設定を読み込む。未知のキーはエラーにする
func loadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル %q を開けません: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("設定ファイル %q の読み込みに失敗: %w", path, err)
	}

	return &cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", cfg.Camera.Device)
	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)

	if v := os.Getenv("CAMERA_POSITION"); v != "" {
		if p, err := camera.ParsePosition(v); err == nil {
			cfg.Camera.Position = p
		}
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	switch c.Camera.Backend {
	case BackendV4L2, BackendMock:
	default:
		return fmt.Errorf("無効なバックエンド: %q", c.Camera.Backend)
	}

	if c.Camera.Width <= 0 || c.Camera.Width > 4096 {
		return fmt.Errorf("無効な幅: %d", c.Camera.Width)
	}
	if c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		return fmt.Errorf("無効な高さ: %d", c.Camera.Height)
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}
	if c.Camera.CaptureTimeout < 0 {
		return fmt.Errorf("無効なキャプチャタイムアウト: %s", c.Camera.CaptureTimeout)
	}

	if c.Flow.SendTimeout < 0 {
		return fmt.Errorf("無効な送信タイムアウト: %s", c.Flow.SendTimeout)
	}

	for i, d := range c.Camera.Devices {
		if d.Device == "" {
			return fmt.Errorf("camera.devices[%d] のデバイスパスがありません", i)
		}
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("無効なログレベル: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("無効なログ形式: %q", c.Log.Format)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DeviceHints はV4L2バックエンドに渡すデバイスの補足情報を返す
// camera.device が指定されていれば、そのデバイスを優先する向きとして扱う
func (c *Config) DeviceHints() []camera.DeviceHint {
	hints := make([]camera.DeviceHint, 0, len(c.Camera.Devices)+1)
	if c.Camera.Device != "" {
		hints = append(hints, camera.DeviceHint{
			Path:     c.Camera.Device,
			Position: c.Camera.Position,
		})
	}
	for _, d := range c.Camera.Devices {
		if d.Device == c.Camera.Device {
			if d.Name != "" && len(hints) > 0 {
				hints[0].Name = d.Name
			}
			continue
		}
		hints = append(hints, camera.DeviceHint{
			Path:     d.Device,
			Name:     d.Name,
			Position: d.Position,
		})
	}
	return hints
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
