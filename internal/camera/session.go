package camera

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"shashin/internal/queue"
)

// Session はカメラデバイスと静止画出力を所有し、全てのハードウェア操作を
// 専用のワークキュー上で直列に実行する
//
// Observer への通知とキャプチャ完了コールバックは常にメインキュー上で呼ばれる。
type Session struct {
	backend Backend
	main    Dispatcher
	work    *queue.Queue
	logger  *zap.Logger

	position       Position
	captureTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// Observer は所有しない参照。解除後の通知は無視される
	mu       sync.RWMutex
	observer Observer

	// ワークキュー上でのみ書き込まれる
	device atomic.Pointer[Device]
	input  *Input
	output atomic.Pointer[StillOutput]

	unsubscribe func()
	closeOnce   sync.Once
}

// Option はSessionの設定を変更する
type Option func(*Session)

// WithLogger はロガーを設定する
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPosition は優先するデバイスの向きを設定する
func WithPosition(position Position) Option {
	return func(s *Session) {
		s.position = position
	}
}

// WithCaptureTimeout は1回の静止画取得のタイムアウトを設定する。0は無制限
func WithCaptureTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.captureTimeout = timeout
	}
}

// NewSession は新しいSessionを作成する
// バックエンドの状態通知はここで購読され、Close で解除される
func NewSession(backend Backend, main Dispatcher, opts ...Option) *Session {
	s := &Session{
		backend:  backend,
		main:     main,
		logger:   zap.NewNop(),
		position: PositionBack,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("camera")
	s.work = queue.New("camera-session", s.logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.unsubscribe = backend.Subscribe(s.handleNotification)

	return s
}

// Initialize はObserverを登録し、ワークキュー上でセッションを構成する
// 完了するとメインキュー上で ConfigurationDidComplete が呼ばれる
func (s *Session) Initialize(observer Observer) {
	s.setObserver(observer)

	s.work.Async(func() {
		s.configure()

		s.notify(func(o Observer) {
			s.logger.Info("セッションの初期化が完了しました")
			o.ConfigurationDidComplete()
		})
	})
}

// Start はワークキュー上でセッションを開始する
func (s *Session) Start() {
	s.work.Async(func() {
		if err := s.backend.StartRunning(s.ctx); err != nil {
			s.logger.Error("セッションの開始に失敗しました", zap.Error(err))
		}
	})
}

// Stop はワークキュー上でセッションを停止する
func (s *Session) Stop() {
	s.work.Async(func() {
		if err := s.backend.StopRunning(s.ctx); err != nil {
			s.logger.Error("セッションの停止に失敗しました", zap.Error(err))
		}
	})
}

// CaptureStill は静止画を1枚取得する
// completion は呼び出し毎にメインキュー上で必ず1回呼ばれる。失敗時の引数はnil
func (s *Session) CaptureStill(completion func(*Image)) {
	var once sync.Once
	deliver := func(img *Image) {
		once.Do(func() {
			if !s.main.Async(func() { completion(img) }) {
				s.logger.Warn("メインキューが停止しているため完了通知を破棄しました")
			}
		})
	}

	out := s.output.Load()
	if out == nil {
		s.logger.Warn("静止画を取得できません", zap.Error(ErrNoOutput))
		deliver(nil)
		return
	}

	if !s.work.Async(func() { deliver(s.capture(out)) }) {
		deliver(nil)
	}
}

// Device は構成済みのデバイスを返す
func (s *Session) Device() (Device, bool) {
	d := s.device.Load()
	if d == nil {
		return Device{}, false
	}
	return *d, true
}

// Preview はバックエンドがプレビューに対応していればライブフレームを返す
func (s *Session) Preview() (<-chan []byte, func(), bool) {
	p, ok := s.backend.(Previewer)
	if !ok {
		return nil, nil, false
	}
	frames, cancel := p.Preview()
	return frames, cancel, true
}

// Close はObserverを解除し、通知の購読を解除してワークキューを停止する
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setObserver(nil)
		s.unsubscribe()
		s.work.Close()
		s.cancel()

		if c, ok := s.backend.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// configure はデバイス入力と静止画出力を構成する（ワークキュー上）
func (s *Session) configure() {
	device, err := s.selectDevice()
	if err != nil {
		s.logger.Error("デバイスの選択に失敗しました", zap.Error(err))
		s.commit(nil)
		return
	}

	in, err := s.backend.OpenInput(s.ctx, device)
	if err != nil {
		// 入力を開けない場合は出力を追加しない
		s.logger.Error("デバイス入力を開けませんでした", zap.Stringer("device", device), zap.Error(err))
		s.commit(nil)
		return
	}

	if err := s.commit(in); err != nil {
		return
	}

	s.input = in
	s.device.Store(&device)

	out := newStillOutput(CodecJPEG)
	out.connect(in)
	s.output.Store(out)

	s.logger.Info("静止画出力を構成しました", zap.Stringer("device", device), zap.String("codec", string(out.Codec)))
}

// commit はバックエンドに構成を確定させる
func (s *Session) commit(in *Input) error {
	if err := s.backend.Configure(s.ctx, in); err != nil {
		s.logger.Error("構成の確定に失敗しました", zap.Error(err))
		return err
	}
	return nil
}

// selectDevice は優先する向きのデバイスを選択する
// 一致するものがなければ最初のデバイスを使う
func (s *Session) selectDevice() (Device, error) {
	devices, err := s.backend.Devices(s.ctx, MediaTypeVideo)
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, ErrNoDevice
	}

	selected := devices[0]
	for _, d := range devices {
		if d.Position == s.position {
			selected = d
			break
		}
	}

	return selected, nil
}

// capture は出力の映像接続から静止画を取得する（ワークキュー上）
func (s *Session) capture(out *StillOutput) *Image {
	conn := out.VideoConnection()
	if conn == nil {
		s.logger.Warn("静止画を取得できません", zap.Error(ErrNoVideoConnection))
		return nil
	}

	ctx := s.ctx
	if s.captureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.captureTimeout)
		defer cancel()
	}

	data, err := s.backend.CaptureStill(ctx, conn, out.Codec)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("静止画の取得がタイムアウトしました", zap.Duration("timeout", s.captureTimeout))
		} else {
			s.logger.Error("静止画の取得に失敗しました", zap.Error(err))
		}
		return nil
	}

	var device Device
	if conn.Input != nil {
		device = conn.Input.Device
	}

	img, err := decodeImage(data, device)
	if err != nil {
		s.logger.Error("静止画のデコードに失敗しました", zap.Error(err))
		return nil
	}

	s.logger.Debug("静止画を取得しました",
		zap.String("id", img.ID),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Int("bytes", len(img.Data)),
	)
	return img
}

// handleNotification はバックエンドの通知をメインキュー上のObserverに転送する
func (s *Session) handleNotification(n Notification) {
	switch n {
	case NotificationDidStartRunning:
		s.notify(func(o Observer) {
			s.logger.Info("セッションが開始しました")
			o.SessionDidBegin()
		})
	case NotificationDidStopRunning:
		s.notify(func(o Observer) {
			s.logger.Info("セッションが停止しました")
			o.SessionDidStop()
		})
	default:
		s.logger.Debug("未知の通知を無視しました", zap.String("notification", string(n)))
	}
}

// notify はメインキュー上で現在のObserverに通知する
func (s *Session) notify(fn func(Observer)) {
	s.main.Async(func() {
		if o := s.currentObserver(); o != nil {
			fn(o)
		}
	})
}

func (s *Session) setObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

func (s *Session) currentObserver() Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observer
}
