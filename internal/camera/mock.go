package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// MockBackend はテストとデモ用のバックエンド実装
// 呼び出された操作を順番に記録する
type MockBackend struct {
	notificationCenter

	mu      sync.Mutex
	devices []Device
	ops     []string
	running bool
	input   *Input

	// テスト制御用
	devicesErr    error
	openErr       error
	configureErr  error
	captureErr    error
	captureData   []byte
	omitVideoPort bool
	captureGate   chan struct{}
}

// NewMockBackend は新しいMockBackendを作成する
// デバイスを省略すると DefaultMockDevices が使われる
func NewMockBackend(devices ...Device) *MockBackend {
	if len(devices) == 0 {
		devices = DefaultMockDevices()
	}
	return &MockBackend{devices: devices}
}

// DefaultMockDevices は前面と背面の2台のモックデバイスを返す
func DefaultMockDevices() []Device {
	return []Device{
		{
			ID:         "mock-front",
			Name:       "モック前面カメラ",
			Position:   PositionFront,
			MediaTypes: []MediaType{MediaTypeVideo},
		},
		{
			ID:         "mock-back",
			Name:       "モック背面カメラ",
			Position:   PositionBack,
			MediaTypes: []MediaType{MediaTypeVideo},
		},
	}
}

// Devices はモックデバイス一覧を返す
func (m *MockBackend) Devices(_ context.Context, mediaType MediaType) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("devices")
	if m.devicesErr != nil {
		return nil, m.devicesErr
	}

	var result []Device
	for _, d := range m.devices {
		if d.HasMediaType(mediaType) {
			result = append(result, d)
		}
	}
	return result, nil
}

// OpenInput はモックデバイスの入力を開く
func (m *MockBackend) OpenInput(_ context.Context, device Device) (*Input, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("open:" + device.ID)
	if m.openErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, device.ID, m.openErr)
	}

	var ports []Port
	for _, mt := range device.MediaTypes {
		if mt == MediaTypeVideo && m.omitVideoPort {
			continue
		}
		ports = append(ports, Port{MediaType: mt})
	}
	if len(ports) == 0 {
		ports = []Port{{MediaType: MediaTypeAudio}}
	}

	return &Input{Device: device, Ports: ports}, nil
}

// Configure は構成を記録する
func (m *MockBackend) Configure(_ context.Context, in *Input) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in == nil {
		m.record("configure")
	} else {
		m.record("configure:" + in.Device.ID)
	}
	if m.configureErr != nil {
		return m.configureErr
	}
	m.input = in
	return nil
}

// StartRunning はセッション開始を記録し、開始通知を送る
func (m *MockBackend) StartRunning(_ context.Context) error {
	m.mu.Lock()
	m.record("start")
	m.running = true
	m.mu.Unlock()

	m.post(NotificationDidStartRunning)
	return nil
}

// StopRunning はセッション停止を記録し、停止通知を送る
func (m *MockBackend) StopRunning(_ context.Context) error {
	m.mu.Lock()
	m.record("stop")
	m.running = false
	m.mu.Unlock()

	m.post(NotificationDidStopRunning)
	return nil
}

// CaptureStill はモックJPEGデータを返す
func (m *MockBackend) CaptureStill(ctx context.Context, conn *Connection, codec Codec) ([]byte, error) {
	m.mu.Lock()
	id := ""
	if conn.Input != nil {
		id = conn.Input.Device.ID
	}
	m.record("capture:" + id)
	gate := m.captureGate
	captureErr := m.captureErr
	data := m.captureData
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if codec != CodecJPEG {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
	if captureErr != nil {
		return nil, captureErr
	}
	if data == nil {
		return EncodeTestJPEG(64, 48)
	}
	return data, nil
}

// Operations は記録された操作の一覧を返す
func (m *MockBackend) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.ops))
	copy(result, m.ops)
	return result
}

// Running はセッションが動作中か返す
func (m *MockBackend) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Subscribers は通知の購読者数を返す
func (m *MockBackend) Subscribers() int {
	return m.subscribers()
}

// SetDevicesError はテスト用にデバイス一覧の取得失敗を設定する
func (m *MockBackend) SetDevicesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devicesErr = err
}

// SetOpenInputError はテスト用に入力を開く処理の失敗を設定する
func (m *MockBackend) SetOpenInputError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetConfigureError はテスト用に構成確定の失敗を設定する
func (m *MockBackend) SetConfigureError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configureErr = err
}

// SetCaptureError はテスト用に静止画取得の失敗を設定する
func (m *MockBackend) SetCaptureError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureErr = err
}

// SetCaptureData はテスト用に静止画取得で返すデータを設定する
func (m *MockBackend) SetCaptureData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureData = data
}

// SetOmitVideoPort はテスト用に映像ポートのない入力を返すよう設定する
func (m *MockBackend) SetOmitVideoPort(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitVideoPort = omit
}

// SetCaptureGate はテスト用に静止画取得をチャンネルがクローズされるまで待たせる
func (m *MockBackend) SetCaptureGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureGate = gate
}

func (m *MockBackend) record(op string) {
	m.ops = append(m.ops, op)
}

// EncodeTestJPEG は単色のテスト用JPEG画像を生成する
func EncodeTestJPEG(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 0x33, G: 0x99, B: 0xcc, A: 0xff}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("テスト用JPEGの生成に失敗: %w", err)
	}
	return buf.Bytes(), nil
}
