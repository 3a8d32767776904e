package flow

import (
	"context"

	"go.uber.org/zap"

	"shashin/internal/camera"
)

// Sender は撮影した画像の送信先
// アップロードなどの外部連携はこのインターフェースを実装して差し込む
type Sender interface {
	Send(ctx context.Context, img *camera.Image) error
}

// NopSender は何も送信せずログだけを出力するSender
type NopSender struct {
	Logger *zap.Logger
}

// Send は送信したことをログに記録する
func (s NopSender) Send(_ context.Context, img *camera.Image) error {
	if s.Logger != nil {
		s.Logger.Info("送信処理は未実装のためスキップしました",
			zap.String("id", img.ID),
			zap.Int("bytes", len(img.Data)),
		)
	}
	return nil
}

// SenderFunc は関数をSenderとして使うためのアダプタ
type SenderFunc func(ctx context.Context, img *camera.Image) error

// Send は f(ctx, img) を呼び出す
func (f SenderFunc) Send(ctx context.Context, img *camera.Image) error {
	return f(ctx, img)
}
