// Package flow はプレビュー・撮影・確認の画面遷移を管理する
//
// 状態と保持中の画像はコントローラが所有するメインキュー上でのみ変更される。
// 利用者の操作（撮影/送信、リセット）とカメラセッションからの通知は全て
// メインキューに投入されてから処理される。
package flow

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"shashin/internal/broadcast"
	"shashin/internal/camera"
	"shashin/internal/queue"
)

// Session はコントローラが使うカメラセッションの操作
type Session interface {
	Initialize(observer camera.Observer)
	Start()
	CaptureStill(completion func(*camera.Image))
	Close() error
}

// Controller は撮影フローの状態機械
type Controller struct {
	main        *queue.Queue
	logger      *zap.Logger
	sender      Sender
	sendTimeout time.Duration
	updates     *broadcast.Hub[Snapshot]
	last        atomic.Pointer[Snapshot]

	// 以下はメインキュー上でのみ変更される
	session      Session
	state        State
	image        *camera.Image
	statusText   string
	statusAlpha  float64
	previewAlpha float64
	photoAlpha   float64
	actionTitle  string
	capturing    bool
	sending      bool
	version      uint64
}

// ControllerOption はControllerの設定を変更する
type ControllerOption func(*Controller)

// WithLogger はロガーを設定する
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSender は送信先を設定する
func WithSender(sender Sender) ControllerOption {
	return func(c *Controller) {
		if sender != nil {
			c.sender = sender
		}
	}
}

// WithSendTimeout は1回の送信のタイムアウトを設定する。0以下は既定値のまま
func WithSendTimeout(timeout time.Duration) ControllerOption {
	return func(c *Controller) {
		if timeout > 0 {
			c.sendTimeout = timeout
		}
	}
}

// NewController は新しいControllerを作成し、メインキューを開始する
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		logger:       zap.NewNop(),
		sendTimeout:  30 * time.Second,
		updates:      broadcast.NewHub[Snapshot](),
		state:        StatePreviewing,
		statusAlpha:  1,
		previewAlpha: 1,
		actionTitle:  TitleCapture,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("flow")
	if c.sender == nil {
		c.sender = NopSender{Logger: c.logger}
	}
	c.main = queue.New("main", c.logger)

	snap := c.snapshot()
	c.last.Store(&snap)

	return c
}

// Main はメインキューを返す。カメラセッションの通知先として使う
func (c *Controller) Main() camera.Dispatcher {
	return c.main
}

// Open はセッションを結び付けて初期化を開始する
func (c *Controller) Open(session Session) {
	c.main.Async(func() {
		c.session = session
		c.statusText = StatusStarting
		c.publish()

		session.Initialize(c)
	})
}

// Close はセッションを閉じてメインキューを停止する
func (c *Controller) Close() error {
	var err error
	c.main.Sync(func() {
		if c.session != nil {
			err = c.session.Close()
			c.session = nil
		}
	})
	c.main.Close()
	c.updates.Close()
	return err
}

// Capture は撮影ボタンの操作。プレビュー中は撮影、撮影後は送信になる
func (c *Controller) Capture() {
	c.main.Async(c.handleCapture)
}

// Reset はリセットボタンの操作。撮影後の状態からプレビューに戻る
func (c *Controller) Reset() {
	c.main.Async(c.handleReset)
}

// Snapshot は現在の状態を返す
// それまでに投入された操作が全て処理された後の状態になる
func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	if c.main.Sync(func() { snap = c.snapshot() }) {
		return snap
	}
	return *c.last.Load()
}

// Image は保持している画像を返す。なければnil
func (c *Controller) Image() *camera.Image {
	var img *camera.Image
	c.main.Sync(func() { img = c.image })
	return img
}

// Subscribe は状態変化ごとのSnapshotを受け取るチャンネルを返す
func (c *Controller) Subscribe(buffer int) (<-chan Snapshot, func()) {
	return c.updates.Subscribe(buffer)
}

// ConfigurationDidComplete はセッション構成の完了でセッションを開始する
func (c *Controller) ConfigurationDidComplete() {
	if c.session != nil {
		c.session.Start()
	}
}

// SessionDidBegin はセッション開始時の表示に切り替える
func (c *Controller) SessionDidBegin() {
	c.statusText = StatusResetting
	c.statusAlpha = 0
	c.previewAlpha = 1
	c.photoAlpha = 1
	c.publish()
}

// SessionDidStop はセッション停止時の表示に切り替える
func (c *Controller) SessionDidStop() {
	c.statusText = StatusStopped
	c.statusAlpha = 1
	c.previewAlpha = 0
	c.publish()
}

func (c *Controller) handleCapture() {
	switch c.state {
	case StatePreviewing:
		c.startCapture()
	case StateCaptured, StateErrored:
		c.send()
	}
}

func (c *Controller) handleReset() {
	switch c.state {
	case StateCaptured, StateErrored:
		c.activateCamera()
	default:
		c.logger.Debug("プレビュー中のリセットは無視します")
	}
}

// startCapture は静止画の取得を開始する
func (c *Controller) startCapture() {
	if c.capturing {
		c.logger.Debug("撮影中のため操作を無視します")
		return
	}

	c.capturing = true
	c.statusText = StatusCapturing
	c.previewAlpha = 0
	c.statusAlpha = 1
	c.publish()

	if c.session == nil {
		c.captureDidComplete(nil)
		return
	}
	c.session.CaptureStill(c.captureDidComplete)
}

// captureDidComplete は取得結果で状態を遷移させる（メインキュー上）
func (c *Controller) captureDidComplete(img *camera.Image) {
	if !c.capturing {
		return
	}
	c.capturing = false

	if img != nil {
		c.image = img
		c.photoAlpha = 1
		c.statusAlpha = 0
		c.state = StateCaptured
		c.logger.Info("撮影しました", zap.String("id", img.ID))
	} else {
		c.statusText = StatusFailed
		c.state = StateErrored
		c.logger.Warn("撮影に失敗しました")
	}

	c.actionTitle = TitleSend
	c.publish()
}

// send は保持している画像を送信してプレビューに戻る
func (c *Controller) send() {
	c.sending = true
	c.statusText = StatusSending
	c.statusAlpha = 1
	c.publish()

	if c.image != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
		if err := c.sender.Send(ctx, c.image); err != nil {
			c.logger.Error("送信に失敗しました", zap.String("id", c.image.ID), zap.Error(err))
		}
		cancel()
	}

	c.sending = false
	c.activateCamera()
}

// activateCamera はプレビュー表示に戻し、保持している画像を破棄する
func (c *Controller) activateCamera() {
	c.photoAlpha = 0
	c.statusAlpha = 0
	c.previewAlpha = 1
	c.actionTitle = TitleCapture
	c.image = nil
	c.state = StatePreviewing
	c.publish()
}

// publish は現在の状態を購読者に配信する
func (c *Controller) publish() {
	c.version++
	snap := c.snapshot()
	c.last.Store(&snap)
	c.updates.Publish(snap)
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		Version:      c.version,
		State:        c.state,
		StatusText:   c.statusText,
		StatusAlpha:  c.statusAlpha,
		PreviewAlpha: c.previewAlpha,
		PhotoAlpha:   c.photoAlpha,
		ActionTitle:  c.actionTitle,
		Capturing:    c.capturing,
		Sending:      c.sending,
	}
	if c.image != nil {
		snap.Image = &ImageInfo{
			ID:         c.image.ID,
			Width:      c.image.Width,
			Height:     c.image.Height,
			Size:       len(c.image.Data),
			Device:     c.image.Device.Name,
			CapturedAt: c.image.CapturedAt,
		}
	}
	return snap
}
