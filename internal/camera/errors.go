package camera

import "errors"

var (
	ErrNoDevice          = errors.New("利用可能なカメラデバイスがありません")
	ErrDeviceUnavailable = errors.New("デバイスが利用できません")
	ErrNoOutput          = errors.New("静止画出力が構成されていません")
	ErrNoVideoConnection = errors.New("映像の接続がありません")
	ErrNotConfigured     = errors.New("セッションが構成されていません")
	ErrUnsupportedCodec  = errors.New("サポートされていない形式です")
	ErrNoFrame           = errors.New("ストリームからフレームをまだ受信していません")
)
