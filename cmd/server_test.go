package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shashin/internal/camera"
	"shashin/internal/config"
)

func TestOptionsApply(t *testing.T) {
	cfg := config.Default()
	options{}.apply(cfg)
	assert.Equal(t, config.Default(), cfg, "未指定のオプションは設定を変更しない")

	options{
		host:      "127.0.0.1",
		port:      9000,
		device:    "/dev/video2",
		position:  camera.PositionFront,
		mock:      true,
		logLevel:  "debug",
		logFormat: "json",
	}.apply(cfg)

	assert.Equal(t, "127.0.0.1:9000", cfg.ServerAddress())
	assert.Equal(t, "/dev/video2", cfg.Camera.Device)
	assert.Equal(t, camera.PositionFront, cfg.Camera.Position)
	assert.Equal(t, config.BackendMock, cfg.Camera.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}
