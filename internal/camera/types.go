package camera

import (
	"context"
	"fmt"
	"strings"
)

// Position はカメラデバイスの向きを表す
type Position string

const (
	PositionUnspecified Position = "unspecified" // 向き不明
	PositionBack        Position = "back"        // 背面（被写体側）
	PositionFront       Position = "front"       // 前面（利用者側）
)

// ParsePosition は文字列からPositionを解析する
func ParsePosition(plain string) (Position, error) {
	switch strings.TrimSpace(strings.ToLower(plain)) {
	case "back", "rear", "environment":
		return PositionBack, nil
	case "front", "user":
		return PositionFront, nil
	case "", "unspecified":
		return PositionUnspecified, nil
	default:
		return PositionUnspecified, fmt.Errorf("無効なカメラの向き: %s", plain)
	}
}

// Set はフラグ値として文字列を設定する
func (p *Position) Set(plain string) error {
	v, err := ParsePosition(plain)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Position) String() string {
	if p == "" {
		return string(PositionUnspecified)
	}
	return string(p)
}

// MarshalText はテキスト表現を返す
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText はテキスト表現からPositionを復元する
func (p *Position) UnmarshalText(text []byte) error {
	return p.Set(string(text))
}

// MediaType はデバイスやポートが扱うメディアの種類
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// Codec は静止画の符号化形式
type Codec string

// CodecJPEG は静止画出力で使うJPEG形式
const CodecJPEG Codec = "jpeg"

// Device は撮影可能なデバイスの情報
type Device struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Path       string      `json:"path,omitempty"` // デバイスパス（例: /dev/video0）
	Position   Position    `json:"position"`
	MediaTypes []MediaType `json:"media_types,omitempty"`
}

func (d Device) String() string {
	return fmt.Sprintf("[%s] %s (%s)", d.ID, d.Name, d.Position)
}

// HasMediaType はデバイスが指定メディアを扱えるか返す
func (d Device) HasMediaType(mt MediaType) bool {
	for _, v := range d.MediaTypes {
		if v == mt {
			return true
		}
	}
	return false
}

// Port はデバイス入力が提供する入力ポート
type Port struct {
	MediaType MediaType
}

// Input は開かれたデバイス入力
type Input struct {
	Device Device
	Ports  []Port
}

// Connection は入力ポートと出力を結ぶ接続
type Connection struct {
	Input      *Input
	InputPorts []Port
}

// Carries は接続が指定メディアの入力ポートを持つか返す
func (c *Connection) Carries(mt MediaType) bool {
	for _, p := range c.InputPorts {
		if p.MediaType == mt {
			return true
		}
	}
	return false
}

// StillOutput は静止画の出力先
type StillOutput struct {
	Codec       Codec
	Connections []*Connection
}

// newStillOutput は指定形式の静止画出力を作成する
func newStillOutput(codec Codec) *StillOutput {
	return &StillOutput{Codec: codec}
}

// connect は入力のポートを持つ接続を出力に追加する
func (o *StillOutput) connect(in *Input) {
	ports := make([]Port, len(in.Ports))
	copy(ports, in.Ports)
	o.Connections = append(o.Connections, &Connection{
		Input:      in,
		InputPorts: ports,
	})
}

// VideoConnection は映像ポートを持つ最初の接続を返す。なければnil
func (o *StillOutput) VideoConnection() *Connection {
	for _, c := range o.Connections {
		if c.Carries(MediaTypeVideo) {
			return c
		}
	}
	return nil
}

// Notification はバックエンドのセッション状態通知
type Notification string

const (
	NotificationDidStartRunning Notification = "did_start_running"
	NotificationDidStopRunning  Notification = "did_stop_running"
)

// Observer はセッションのライフサイクル通知を受け取る
// 全ての通知はメインキュー上で呼び出される
type Observer interface {
	// ConfigurationDidComplete はセッション構成の完了時に呼ばれる
	ConfigurationDidComplete()

	// SessionDidBegin はセッションの開始時に呼ばれる
	SessionDidBegin()

	// SessionDidStop はセッションの停止時に呼ばれる
	SessionDidStop()
}

// Dispatcher は関数を特定の実行コンテキストに投入する
type Dispatcher interface {
	Async(fn func()) bool
}

// Backend はカメラハードウェアへのアクセスを担うインターフェース
// Session のワークキューからのみ呼び出される
type Backend interface {
	// Devices は指定メディアを扱えるデバイス一覧を返す
	Devices(ctx context.Context, mediaType MediaType) ([]Device, error)

	// OpenInput はデバイス入力を開く
	OpenInput(ctx context.Context, device Device) (*Input, error)

	// Configure は構成を確定する。入力を開けなかった場合 in はnil
	Configure(ctx context.Context, in *Input) error

	// StartRunning はセッションを開始する
	StartRunning(ctx context.Context) error

	// StopRunning はセッションを停止する
	StopRunning(ctx context.Context) error

	// CaptureStill は接続から静止画を1枚取得し、符号化済みデータを返す
	CaptureStill(ctx context.Context, conn *Connection, codec Codec) ([]byte, error)

	// Subscribe はセッション状態通知の購読を登録し、解除関数を返す
	Subscribe(fn func(Notification)) (unsubscribe func())
}

// Previewer はプレビュー用のライブフレームを提供するバックエンド
type Previewer interface {
	Preview() (<-chan []byte, func())
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device  string   // デバイスパス
	Name    string   // デバイス名
	Driver  string   // ドライバー名
	Formats []string // サポートされるフォーマット
}
