package camera

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"shashin/internal/broadcast"
)

// DeviceHint は設定で与えるデバイスの補足情報
// V4L2 はデバイスの向きを報告しないため、向きはここから決まる
type DeviceHint struct {
	Path     string
	Name     string
	Position Position
}

// V4L2Options はV4L2Backendの設定
type V4L2Options struct {
	Width  int
	Height int
	FPS    int
	Hints  []DeviceHint
	Logger *zap.Logger
}

// V4L2Backend はV4L2デバイスを ffmpeg / v4l2-ctl で操作するバックエンド
//
// 動作中は MJPEG ストリームを受信し続け、最新フレームをプレビューと静止画に使う。
// 停止中の静止画は ffmpeg で1フレームだけ取得する。
type V4L2Backend struct {
	notificationCenter

	discovery Discovery
	opts      V4L2Options
	logger    *zap.Logger
	preview   *broadcast.Hub[[]byte]

	mu           sync.Mutex
	input        *Input
	capturer     *V4L2Capturer
	running      bool
	cancelStream context.CancelFunc
	streamDone   chan struct{}
	latest       []byte
}

// NewV4L2Backend は新しいV4L2Backendを作成する
func NewV4L2Backend(discovery Discovery, opts V4L2Options) *V4L2Backend {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FPS <= 0 {
		opts.FPS = 15
	}

	return &V4L2Backend{
		discovery: discovery,
		opts:      opts,
		logger:    logger.Named("v4l2"),
		preview:   broadcast.NewHub[[]byte](),
	}
}

// Devices は検出された映像デバイスを返す
func (b *V4L2Backend) Devices(ctx context.Context, mediaType MediaType) ([]Device, error) {
	if mediaType != MediaTypeVideo {
		return nil, nil
	}

	paths, err := b.discovery.ScanDevices(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(paths))
	for _, path := range paths {
		device := Device{
			ID:         filepath.Base(path),
			Name:       path,
			Path:       path,
			Position:   PositionUnspecified,
			MediaTypes: []MediaType{MediaTypeVideo},
		}

		if info, err := b.discovery.GetDeviceInfo(ctx, path); err == nil && info.Name != "" {
			device.Name = info.Name
		} else if err != nil {
			b.logger.Debug("デバイス情報を取得できませんでした", zap.String("device", path), zap.Error(err))
		}

		if hint, ok := b.hintFor(path); ok {
			device.Position = hint.Position
			if hint.Name != "" {
				device.Name = hint.Name
			}
		}

		devices = append(devices, device)
	}

	return devices, nil
}

// OpenInput はデバイスが利用可能か確認して入力を返す
func (b *V4L2Backend) OpenInput(ctx context.Context, device Device) (*Input, error) {
	if !b.discovery.IsDeviceAvailable(ctx, device.Path) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, device.Path)
	}

	return &Input{
		Device: device,
		Ports:  []Port{{MediaType: MediaTypeVideo}},
	}, nil
}

// Configure は入力に対応するキャプチャを用意する
func (b *V4L2Backend) Configure(_ context.Context, in *Input) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.input = in
	b.capturer = nil
	if in != nil {
		b.capturer = NewV4L2Capturer(in.Device.Path, b.opts.Width, b.opts.Height, b.opts.FPS)
	}
	return nil
}

// StartRunning はMJPEGストリームを開始する
func (b *V4L2Backend) StartRunning(_ context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	if b.capturer == nil {
		b.mu.Unlock()
		return ErrNotConfigured
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	frames := make(chan []byte, 10)
	errs := make(chan error, 5)
	done := make(chan struct{})

	go b.capturer.StartStream(streamCtx, frames, errs)
	go b.forwardFrames(streamCtx, frames, errs, done)

	b.running = true
	b.cancelStream = cancel
	b.streamDone = done
	device := b.capturer.DevicePath()
	b.mu.Unlock()

	b.logger.Info("ストリームを開始しました", zap.String("device", device))
	b.post(NotificationDidStartRunning)
	return nil
}

// StopRunning はストリームを停止する
func (b *V4L2Backend) StopRunning(_ context.Context) error {
	done, stopped := b.halt()
	if !stopped {
		return nil
	}

	<-done
	b.logger.Info("ストリームを停止しました")
	b.post(NotificationDidStopRunning)
	return nil
}

// CaptureStill は静止画をJPEGで返す
func (b *V4L2Backend) CaptureStill(ctx context.Context, conn *Connection, codec Codec) ([]byte, error) {
	if codec != CodecJPEG {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
	if !conn.Carries(MediaTypeVideo) {
		return nil, ErrNoVideoConnection
	}

	b.mu.Lock()
	if b.running {
		// 動作中はストリームがデバイスを占有しているため、単発の取得はできない
		defer b.mu.Unlock()
		if b.latest == nil {
			return nil, ErrNoFrame
		}
		frame := make([]byte, len(b.latest))
		copy(frame, b.latest)
		return frame, nil
	}
	capturer := b.capturer
	b.mu.Unlock()

	if capturer == nil {
		return nil, ErrNotConfigured
	}
	return capturer.CaptureFrameAsJPEG(ctx)
}

// Preview はライブフレームの購読を返す
func (b *V4L2Backend) Preview() (<-chan []byte, func()) {
	return b.preview.Subscribe(4)
}

// Close はストリームとプレビュー購読を終了する
func (b *V4L2Backend) Close() error {
	if done, stopped := b.halt(); stopped {
		<-done
	}
	b.preview.Close()
	return nil
}

// halt は動作中ならストリームをキャンセルする
func (b *V4L2Backend) halt() (chan struct{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil, false
	}

	b.cancelStream()
	b.running = false
	b.latest = nil
	return b.streamDone, true
}

// forwardFrames はストリームのフレームを保持してプレビューに配信する
func (b *V4L2Backend) forwardFrames(ctx context.Context, frames <-chan []byte, errs <-chan error, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-frames:
			b.mu.Lock()
			b.latest = frame
			b.mu.Unlock()
			b.preview.Publish(frame)
		case err := <-errs:
			b.logger.Error("ストリームが中断されました", zap.Error(err))
			if _, stopped := b.halt(); stopped {
				b.post(NotificationDidStopRunning)
			}
			return
		}
	}
}

func (b *V4L2Backend) hintFor(path string) (DeviceHint, bool) {
	for _, h := range b.opts.Hints {
		if h.Path == path {
			return h, true
		}
	}
	return DeviceHint{}, false
}
