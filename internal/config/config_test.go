package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shashin/internal/camera"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestConfigLoad はファイル指定なしでデフォルト値が読み込まれることをテストする
func TestConfigLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	// WriteTimeout は 0（無効）でも正常
	assert.Zero(t, cfg.Server.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, BackendV4L2, cfg.Camera.Backend)
	assert.Equal(t, camera.PositionBack, cfg.Camera.Position)
	assert.Equal(t, 15, cfg.Camera.FPS)
	assert.Equal(t, 30*time.Second, cfg.Flow.SendTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

// TestConfigLoadFile はファイルの値がデフォルト値に重なることをテストする
func TestConfigLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
camera:
  backend: mock
  position: front
  capture_timeout: 3s
  devices:
    - device: /dev/video2
      name: 背面USBカメラ
      position: back
flow:
  send_timeout: 5s
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "未指定の値はデフォルトのまま")
	assert.Equal(t, BackendMock, cfg.Camera.Backend)
	assert.Equal(t, camera.PositionFront, cfg.Camera.Position)
	assert.Equal(t, 3*time.Second, cfg.Camera.CaptureTimeout)
	assert.Equal(t, 1280, cfg.Camera.Width)
	require.Len(t, cfg.Camera.Devices, 1)
	assert.Equal(t, camera.PositionBack, cfg.Camera.Devices[0].Position)
	assert.Equal(t, 5*time.Second, cfg.Flow.SendTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestConfigLoadFileErrors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "未知のキー", body: "server:\n  prot: 80\n"},
		{name: "不正な向き", body: "camera:\n  position: sideways\n"},
		{name: "検証エラー", body: "camera:\n  fps: 120\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestEnvironmentVariables は環境変数による上書きをテストする
func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("PORT", "3000")
	t.Setenv("CAMERA_DEVICE", "/dev/video1")
	t.Setenv("CAMERA_POSITION", "front")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port, "環境変数はファイルより優先される")
	assert.Equal(t, "/dev/video1", cfg.Camera.Device)
	assert.Equal(t, camera.PositionFront, cfg.Camera.Position)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:3000", cfg.ServerAddress())
}

func TestEnvironmentVariablesInvalidValuesIgnored(t *testing.T) {
	t.Setenv("PORT", "abc")
	t.Setenv("CAMERA_POSITION", "sideways")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, camera.PositionBack, cfg.Camera.Position)
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{name: "デフォルト", modify: func(*Config) {}},
		{name: "ポート0", modify: func(c *Config) { c.Server.Port = 0 }, expectErr: true},
		{name: "ポート範囲外", modify: func(c *Config) { c.Server.Port = 70000 }, expectErr: true},
		{name: "不明なバックエンド", modify: func(c *Config) { c.Camera.Backend = "dshow" }, expectErr: true},
		{name: "幅0", modify: func(c *Config) { c.Camera.Width = 0 }, expectErr: true},
		{name: "高さ超過", modify: func(c *Config) { c.Camera.Height = 5000 }, expectErr: true},
		{name: "FPS超過", modify: func(c *Config) { c.Camera.FPS = 61 }, expectErr: true},
		{name: "負のタイムアウト", modify: func(c *Config) { c.Camera.CaptureTimeout = -time.Second }, expectErr: true},
		{name: "負の送信タイムアウト", modify: func(c *Config) { c.Flow.SendTimeout = -time.Second }, expectErr: true},
		{name: "パスのないデバイス", modify: func(c *Config) {
			c.Camera.Devices = []CameraDevice{{Name: "名前だけ"}}
		}, expectErr: true},
		{name: "不明なログレベル", modify: func(c *Config) { c.Log.Level = "verbose" }, expectErr: true},
		{name: "不明なログ形式", modify: func(c *Config) { c.Log.Format = "xml" }, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeviceHints(t *testing.T) {
	cfg := Default()
	cfg.Camera.Device = "/dev/video2"
	cfg.Camera.Position = camera.PositionBack
	cfg.Camera.Devices = []CameraDevice{
		{Device: "/dev/video0", Name: "内蔵カメラ", Position: camera.PositionFront},
		{Device: "/dev/video2", Name: "USBカメラ", Position: camera.PositionFront},
	}

	hints := cfg.DeviceHints()
	require.Len(t, hints, 2)
	assert.Equal(t, camera.DeviceHint{Path: "/dev/video2", Name: "USBカメラ", Position: camera.PositionBack}, hints[0])
	assert.Equal(t, camera.DeviceHint{Path: "/dev/video0", Name: "内蔵カメラ", Position: camera.PositionFront}, hints[1])

	assert.Empty(t, Default().DeviceHints())
}
